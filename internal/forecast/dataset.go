package forecast

// Example is one labelled training row: features at t, close at t+1.
type Example struct {
	Features []float64
	Label    float64
}

// Dataset is the model-ready view of a FeatureTable.
type Dataset struct {
	Columns  []string
	Examples []Example

	// Inference is the last row of the full table, before any row was dropped.
	Inference    []float64
	CurrentPrice float64
}

// Prepare labels every row with the next close, drops rows carrying a null
// (the first row has no volume change, the last has no label) and extracts
// the inference vector from the final table row.
func Prepare(table FeatureTable) (Dataset, error) {
	columns := make([]string, len(FeatureColumns))
	copy(columns, FeatureColumns)

	ds := Dataset{Columns: columns}
	if len(table) == 0 {
		return ds, ErrEmptyDataset
	}

	for i := 0; i < len(table)-1; i++ {
		vec, ok := table[i].Vector()
		if !ok {
			continue
		}
		ds.Examples = append(ds.Examples, Example{Features: vec, Label: table[i+1].Close})
	}
	if len(ds.Examples) == 0 {
		return ds, ErrEmptyDataset
	}

	last := table[len(table)-1]
	ds.Inference, _ = last.Vector()
	ds.CurrentPrice = last.Close
	return ds, nil
}

// Matrix splits examples into a feature matrix and a label vector.
func Matrix(examples []Example) (x [][]float64, y []float64) {
	x = make([][]float64, len(examples))
	y = make([]float64, len(examples))
	for i, ex := range examples {
		x[i] = ex.Features
		y[i] = ex.Label
	}
	return x, y
}
