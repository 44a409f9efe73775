package signals

import "errors"

var (
	errNoRubricScorer = errors.New("no rubric scorer configured")
	errEmptyRubric    = errors.New("rubric scorer returned no scores")
)
