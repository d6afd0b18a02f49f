package models

// MatrixEntry is one parameter set of a build matrix.
type MatrixEntry struct {
	BaseImage string `json:"base_image" validate:"required"`
	Tag       string `json:"tag"        validate:"required"`
}

// Matrix produces N parallel job instances from N parameter sets.
type Matrix []MatrixEntry

// JobInstance is one concrete job produced by matrix expansion. Each instance
// receives its own entry by value; instances share no mutable state.
type JobInstance struct {
	ID       string
	BaseName string
	Entry    MatrixEntry
}

// Expand produces one job instance per matrix entry. An empty matrix expands
// to a single instance with a zero entry, so jobs without a matrix still get
// exactly one instance.
func (m Matrix) Expand(baseName string) []JobInstance {
	if len(m) == 0 {
		return []JobInstance{{ID: baseName, BaseName: baseName}}
	}

	instances := make([]JobInstance, 0, len(m))
	for _, entry := range m {
		id := baseName
		if len(m) > 1 || entry.Tag != "" {
			id = baseName + "-" + entry.Tag
		}

		instances = append(instances, JobInstance{
			ID:       id,
			BaseName: baseName,
			Entry:    entry,
		})
	}

	return instances
}
