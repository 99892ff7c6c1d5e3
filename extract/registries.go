package extract

import "github.com/hazyhaar/docintel/registry"

// Process-wide plugin registries. Lifecycle is explicit: built-ins are
// added by extractor.RegisterBuiltins / ocr.RegisterBuiltins, callers add
// and remove their own plugins, and Clear empties a registry for good —
// no read ever re-populates defaults behind the caller's back.
var (
	extractors     = registry.New[Extractor]()
	ocrBackends    = registry.New[OCRBackend]()
	validators     = registry.New[Validator]()
	postProcessors = registry.New[PostProcessor]()
)

// Extractors is the format extractor registry.
func Extractors() *registry.Registry[Extractor] { return extractors }

// OCRBackends is the OCR backend registry.
func OCRBackends() *registry.Registry[OCRBackend] { return ocrBackends }

// Validators is the result validator registry. Validators run in priority
// order after extraction; a rejection aborts the pipeline for that item.
func Validators() *registry.Registry[Validator] { return validators }

// PostProcessors is the post-processor registry. Processors run in priority
// order after validation and may transform the result in place.
func PostProcessors() *registry.Registry[PostProcessor] { return postProcessors }
