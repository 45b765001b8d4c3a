package logging

// Convenience functions - quick logging without getting a logger first.
// These are no-ops if the category is disabled.

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Bus logs to the bus category
func Bus(format string, args ...interface{}) {
	Get(CategoryBus).Info(format, args...)
}

// BusDebug logs debug to the bus category
func BusDebug(format string, args ...interface{}) {
	Get(CategoryBus).Debug(format, args...)
}

// BusError logs error to the bus category
func BusError(format string, args ...interface{}) {
	Get(CategoryBus).Error(format, args...)
}

// Registry logs to the registry category
func Registry(format string, args ...interface{}) {
	Get(CategoryRegistry).Info(format, args...)
}

// RegistryDebug logs debug to the registry category
func RegistryDebug(format string, args ...interface{}) {
	Get(CategoryRegistry).Debug(format, args...)
}

// RateLimit logs to the ratelimit category
func RateLimit(format string, args ...interface{}) {
	Get(CategoryRateLimit).Info(format, args...)
}

// RateLimitDebug logs debug to the ratelimit category
func RateLimitDebug(format string, args ...interface{}) {
	Get(CategoryRateLimit).Debug(format, args...)
}

// Sources logs to the sources category
func Sources(format string, args ...interface{}) {
	Get(CategorySources).Info(format, args...)
}

// SourcesDebug logs debug to the sources category
func SourcesDebug(format string, args ...interface{}) {
	Get(CategorySources).Debug(format, args...)
}

// Crawler logs to the crawler category
func Crawler(format string, args ...interface{}) {
	Get(CategoryCrawler).Info(format, args...)
}

// CrawlerDebug logs debug to the crawler category
func CrawlerDebug(format string, args ...interface{}) {
	Get(CategoryCrawler).Debug(format, args...)
}

// CrawlerWarn logs warning to the crawler category
func CrawlerWarn(format string, args ...interface{}) {
	Get(CategoryCrawler).Warn(format, args...)
}

// CrawlerError logs error to the crawler category
func CrawlerError(format string, args ...interface{}) {
	Get(CategoryCrawler).Error(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreError logs error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// Extraction logs to the extraction category
func Extraction(format string, args ...interface{}) {
	Get(CategoryExtraction).Info(format, args...)
}

// ExtractionDebug logs debug to the extraction category
func ExtractionDebug(format string, args ...interface{}) {
	Get(CategoryExtraction).Debug(format, args...)
}

// ExtractionWarn logs warning to the extraction category
func ExtractionWarn(format string, args ...interface{}) {
	Get(CategoryExtraction).Warn(format, args...)
}

// Consolidate logs to the consolidate category
func Consolidate(format string, args ...interface{}) {
	Get(CategoryConsolidate).Info(format, args...)
}

// ConsolidateDebug logs debug to the consolidate category
func ConsolidateDebug(format string, args ...interface{}) {
	Get(CategoryConsolidate).Debug(format, args...)
}

// ConsolidateWarn logs warning to the consolidate category
func ConsolidateWarn(format string, args ...interface{}) {
	Get(CategoryConsolidate).Warn(format, args...)
}

// Classify logs to the classify category
func Classify(format string, args ...interface{}) {
	Get(CategoryClassify).Info(format, args...)
}

// ClassifyDebug logs debug to the classify category
func ClassifyDebug(format string, args ...interface{}) {
	Get(CategoryClassify).Debug(format, args...)
}

// ClassifyWarn logs warning to the classify category
func ClassifyWarn(format string, args ...interface{}) {
	Get(CategoryClassify).Warn(format, args...)
}

// Verify logs to the verify category
func Verify(format string, args ...interface{}) {
	Get(CategoryVerify).Info(format, args...)
}

// VerifyDebug logs debug to the verify category
func VerifyDebug(format string, args ...interface{}) {
	Get(CategoryVerify).Debug(format, args...)
}

// VerifyWarn logs warning to the verify category
func VerifyWarn(format string, args ...interface{}) {
	Get(CategoryVerify).Warn(format, args...)
}

// Orchestrator logs to the orchestrator category
func Orchestrator(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Info(format, args...)
}

// OrchestratorDebug logs debug to the orchestrator category
func OrchestratorDebug(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Debug(format, args...)
}

// OrchestratorWarn logs warning to the orchestrator category
func OrchestratorWarn(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Warn(format, args...)
}

// LLM logs to the llm category
func LLM(format string, args ...interface{}) {
	Get(CategoryLLM).Info(format, args...)
}

// LLMDebug logs debug to the llm category
func LLMDebug(format string, args ...interface{}) {
	Get(CategoryLLM).Debug(format, args...)
}

// LLMWarn logs warning to the llm category
func LLMWarn(format string, args ...interface{}) {
	Get(CategoryLLM).Warn(format, args...)
}

// Embedding logs to the embedding category
func Embedding(format string, args ...interface{}) {
	Get(CategoryEmbedding).Info(format, args...)
}

// EmbeddingDebug logs debug to the embedding category
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}
