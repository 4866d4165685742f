package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/subwaylab/metrofuse/model"
	"github.com/subwaylab/metrofuse/storage"
)

type TransferCSV struct {
	FromStopID      string `csv:"from_stop_id"`
	ToStopID        string `csv:"to_stop_id"`
	TransferType    int8   `csv:"transfer_type"`
	MinTransferTime int    `csv:"min_transfer_time"`
}

func ParseTransfers(writer storage.FeedWriter, data io.Reader, stops map[string]bool) (int, error) {
	transferCsv := []*TransferCSV{}
	if err := gocsv.Unmarshal(data, &transferCsv); err != nil {
		return 0, fmt.Errorf("unmarshaling transfers csv: %w", err)
	}

	seen := map[string]bool{}
	count := 0
	for _, t := range transferCsv {
		if t.FromStopID == "" || t.ToStopID == "" {
			return 0, fmt.Errorf("transfer with empty from_stop_id or to_stop_id")
		}
		if !stops[t.FromStopID] {
			return 0, fmt.Errorf("unknown from_stop_id: '%s'", t.FromStopID)
		}
		if !stops[t.ToStopID] {
			return 0, fmt.Errorf("unknown to_stop_id: '%s'", t.ToStopID)
		}
		if t.TransferType < 0 || t.TransferType > 3 {
			return 0, fmt.Errorf("illegal transfer_type: '%d'", t.TransferType)
		}
		if t.MinTransferTime < 0 {
			return 0, fmt.Errorf("negative min_transfer_time for '%s' -> '%s'", t.FromStopID, t.ToStopID)
		}

		pair := t.FromStopID + "|" + t.ToStopID
		if seen[pair] {
			return 0, fmt.Errorf("duplicate transfer pair '%s' -> '%s'", t.FromStopID, t.ToStopID)
		}
		seen[pair] = true

		err := writer.WriteTransfer(&model.Transfer{
			FromStopID:      t.FromStopID,
			ToStopID:        t.ToStopID,
			Type:            model.TransferType(t.TransferType),
			MinTransferTime: t.MinTransferTime,
		})
		if err != nil {
			return 0, fmt.Errorf("writing transfer: %w", err)
		}
		count++
	}

	return count, nil
}
