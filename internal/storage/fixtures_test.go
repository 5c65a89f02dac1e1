package storage

import "epimit/internal/model"

func sampleRecord(id, created string) model.EvaluationRecord {
	return model.EvaluationRecord{
		VersionedRecord: Stamp(),
		ID:              id,
		Scenario:        "random",
		Seed:            3,
		CreatedAtUTC:    created,
		Settings:        model.EvaluatorSettings{InfectionFloor: 1e-4, ExpCeiling: 1e10, Sharpness: 50},
		Batch: model.Batch{
			Nodes: model.Nodes{
				S: []float64{0.9}, E: []float64{0.01}, I: []float64{0.05}, R: []float64{0}, D: []float64{0},
				Alpha: []float64{0.2}, Beta: []float64{0.25}, Sigma: []float64{0.1}, Gamma: []float64{0.07},
				Epsilon: []float64{0.003}, Mu: []float64{0}, T: []float64{10},
			},
			Shape: model.Shape{A: 5, TOn: 20, TOff: 60},
		},
		Result: model.EvaluationResult{
			Theta: []float64{0.25}, Sdot: []float64{-0.011}, Edot: []float64{0.009}, Idot: []float64{-0.0015},
			Rdot: []float64{0.0035}, Ddot: []float64{0}, SigmaSq: []float64{0.01}, MaxI: 0.05,
		},
	}
}
