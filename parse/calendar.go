package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/subwaylab/metrofuse/model"
	"github.com/subwaylab/metrofuse/storage"
)

type CalendarCSV struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    int8   `csv:"monday"`
	Tuesday   int8   `csv:"tuesday"`
	Wednesday int8   `csv:"wednesday"`
	Thursday  int8   `csv:"thursday"`
	Friday    int8   `csv:"friday"`
	Saturday  int8   `csv:"saturday"`
	Sunday    int8   `csv:"sunday"`
}

// Returns the set of all service IDs seen.
func ParseCalendar(writer storage.FeedWriter, data io.Reader) (map[string]bool, error) {
	calendarCsv := []*CalendarCSV{}
	if err := gocsv.Unmarshal(data, &calendarCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling calendar csv: %w", err)
	}

	knownServices := map[string]bool{}

	for _, c := range calendarCsv {
		if knownServices[c.ServiceID] {
			return nil, fmt.Errorf("repeated service_id '%s'", c.ServiceID)
		}
		knownServices[c.ServiceID] = true

		if c.ServiceID == "" {
			return nil, fmt.Errorf("empty service_id")
		}

		var weekday int8
		for _, day := range []struct {
			value int8
			day   time.Weekday
			name  string
		}{
			{c.Monday, time.Monday, "monday"},
			{c.Tuesday, time.Tuesday, "tuesday"},
			{c.Wednesday, time.Wednesday, "wednesday"},
			{c.Thursday, time.Thursday, "thursday"},
			{c.Friday, time.Friday, "friday"},
			{c.Saturday, time.Saturday, "saturday"},
			{c.Sunday, time.Sunday, "sunday"},
		} {
			if day.value == 1 {
				weekday |= 1 << day.day
			} else if day.value != 0 {
				return nil, fmt.Errorf("invalid %s value '%d'", day.name, day.value)
			}
		}

		_, err := time.ParseInLocation("20060102", c.StartDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parsing start_date: %w", err)
		}

		_, err = time.ParseInLocation("20060102", c.EndDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parsing end_date: %w", err)
		}

		err = writer.WriteCalendar(&model.Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   weekday,
		})
		if err != nil {
			return nil, fmt.Errorf("writing calendar: %w", err)
		}
	}

	return knownServices, nil
}
