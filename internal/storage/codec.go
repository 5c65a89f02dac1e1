package storage

import (
	"encoding/json"
	"errors"

	"epimit/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp sets the current schema and codec versions on a record header.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeEvaluation(r model.EvaluationRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeEvaluation(data []byte) (model.EvaluationRecord, error) {
	var record model.EvaluationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.EvaluationRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.EvaluationRecord{}, err
	}
	return record, nil
}

func EncodePartialsReport(r model.PartialsReport) ([]byte, error) {
	return json.Marshal(r)
}

func DecodePartialsReport(data []byte) (model.PartialsReport, error) {
	var report model.PartialsReport
	if err := json.Unmarshal(data, &report); err != nil {
		return model.PartialsReport{}, err
	}
	if err := checkVersion(report.VersionedRecord); err != nil {
		return model.PartialsReport{}, err
	}
	return report, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
