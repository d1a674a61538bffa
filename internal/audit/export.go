package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

var csvHeader = []string{"id", "at", "actor_id", "action", "entity_type", "entity_id", "details"}

// WriteCSV renders records as CSV for download.
func WriteCSV(rows []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		actor := ""
		if r.ActorID != nil {
			actor = r.ActorID.String()
		}
		entityID := ""
		if r.EntityID != nil {
			entityID = *r.EntityID
		}
		record := []string{
			strconv.FormatInt(r.ID, 10),
			r.At.UTC().Format(time.RFC3339),
			actor,
			string(r.Action),
			string(r.EntityType),
			entityID,
			string(r.Details),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
