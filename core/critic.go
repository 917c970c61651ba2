package core

// SimpleCritic accepts a candidate when its property checks ran and none failed.
type SimpleCritic struct{}

func NewSimpleCritic() *SimpleCritic { return &SimpleCritic{} }

func (c *SimpleCritic) Accept(metrics map[string]float64) (bool, string) {
	total, ok := metrics["cases_total"]
	if !ok || total == 0 {
		return false, "no property checks ran"
	}
	if failed := metrics["cases_failed"]; failed > 0 {
		return false, "some property checks failed"
	}
	return true, "all property checks passed"
}
