package config

const (
	defaultDBPath         = "~/.local/share/tagpipe/tagpipe.sqlite"
	defaultStoreDir       = "~/.local/share/tagpipe/store"
	defaultBatchDir       = "~/.local/share/tagpipe/batch_jobs"
	defaultLogDir         = "~/.local/share/tagpipe/logs"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiUpload   = "https://generativelanguage.googleapis.com/upload/v1beta/files"
	defaultModel          = "gemini-2.5-flash"
	defaultFallbackModel  = "gemini-2.0-flash"
	defaultRequestTimeout = 60
	defaultSource         = "pinterest"
	defaultImageKind      = "thumb"
	defaultWorkers        = 4
	defaultChunkSize      = 60
	defaultChunkTimeout   = 240
	defaultRequestsPerSec = 2.0
	defaultMinBatch       = 500
	defaultRepairTimeout  = 600
	defaultInteractiveRPS = 0.7
	defaultBatchRPS       = 15.0
	defaultBatchOverheadS = 60.0
	defaultPollInterval   = 30
	defaultBatchMaxBytes  = int64(1_500_000_000)
)

// DefaultPrompt is the labeling prompt sent with every image when the
// configuration does not override it.
const DefaultPrompt = `You are an interior design tagging assistant. Analyze the image and return ONLY valid JSON:
{
  "summary": "short, 1-2 sentence description",
  "image_type": "interior | exterior | product | plan | document | other",
  "rooms": [],
  "elements": [],
  "materials": [],
  "colors": [],
  "styles": [],
  "lighting": [],
  "fixtures": [],
  "appliances": [],
  "text_in_image": [],
  "brands_products": [],
  "tags": []
}

Rules:
- Use lowercase strings.
- Use short phrases when helpful (e.g., "white oak", "brass hardware").
- Return JSON only. No markdown. No extra keys.
`

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DBPath:   defaultDBPath,
			StoreDir: defaultStoreDir,
			BatchDir: defaultBatchDir,
			LogDir:   defaultLogDir,
		},
		Gemini: Gemini{
			BaseURL:        defaultGeminiBaseURL,
			UploadURL:      defaultGeminiUpload,
			Model:          defaultModel,
			FallbackModel:  defaultFallbackModel,
			Prompt:         DefaultPrompt,
			TimeoutSeconds: defaultRequestTimeout,
		},
		Tagging: Tagging{
			Source:            defaultSource,
			ImageKind:         defaultImageKind,
			Workers:           defaultWorkers,
			ChunkSize:         defaultChunkSize,
			RequestsPerSecond: defaultRequestsPerSec,
			ChunkTimeout:      defaultChunkTimeout,
			MinBatch:          defaultMinBatch,
			RecordErrors:      true,
		},
		Repair: Repair{
			TimeoutSeconds: defaultRepairTimeout,
		},
		Estimator: Estimator{
			InteractiveRPS: defaultInteractiveRPS,
			BatchRPS:       defaultBatchRPS,
			BatchOverheadS: defaultBatchOverheadS,
		},
		Batch: Batch{
			PollInterval: defaultPollInterval,
			MaxBytes:     defaultBatchMaxBytes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
