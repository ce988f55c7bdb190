package domain

// RoutingManifest is the per-contract routing configuration. It is authored outside this
// service and loaded read-only; one contract identifier maps to one manifest.
type RoutingManifest struct {
	ContractID   string       `yaml:"contract_id" json:"contract_id"`
	Version      string       `yaml:"version" json:"version,omitempty"`
	QueryRouting QueryRouting `yaml:"query_routing" json:"query_routing"`
}

type QueryRouting struct {
	SlangToContract          map[string]string `yaml:"slang_to_contract" json:"slang_to_contract,omitempty"`
	TopicToArticles          map[string][]int  `yaml:"topic_to_articles" json:"topic_to_articles,omitempty"`
	TopicPatterns            map[string]string `yaml:"topic_patterns" json:"topic_patterns,omitempty"`
	ClassificationToArticles map[string][]int  `yaml:"classification_to_articles" json:"classification_to_articles,omitempty"`
	ClassificationPatterns   map[string]string `yaml:"classification_patterns" json:"classification_patterns,omitempty"`
	IntentToArticles         map[string][]int  `yaml:"intent_to_articles" json:"intent_to_articles,omitempty"`
}
