package domain

// Dataset is a fixed question set evaluated by one run.
type Dataset struct {
	Name  string     `yaml:"name" json:"name"`
	Cases []TestCase `yaml:"cases" json:"cases"`
}

// TestCase is one question with its expectations.
type TestCase struct {
	ID          string   `yaml:"id" json:"id"`
	Question    string   `yaml:"question" json:"question"`
	GroundTruth string   `yaml:"ground_truth" json:"ground_truth"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
}

func (tc TestCase) Query() Query {
	return Query{ID: tc.ID, Text: tc.Question}
}
