package config

const (
	defaultInboxDir              = "~/.local/share/murmur/inbox"
	defaultDataDir               = "~/.local/share/murmur/data"
	defaultLogDir                = "~/.local/share/murmur/logs"
	defaultTranscriptionBinary   = "whisper-cli"
	defaultTranscriptionModel    = "small"
	defaultTranscriptionLanguage = "en"
	defaultTranscribeTimeout     = 900
	defaultUnloadAfterSeconds    = 300
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds     = 60
	defaultJobMaxRetries         = 5
	defaultBackoffBaseSeconds    = 2
	defaultBackoffMaxSeconds     = 300
	defaultJobPollInterval       = 5
	defaultErrorRetryInterval    = 10
	defaultMaxRunning            = 2
	defaultRetentionSeconds      = 600
	defaultProgressBucket        = 5.0
	defaultCleanupInterval       = 30
	defaultCleanupThreshold      = 64
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "text"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir: defaultInboxDir,
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
		},
		Transcription: Transcription{
			Binary:             defaultTranscriptionBinary,
			Model:              defaultTranscriptionModel,
			Language:           defaultTranscriptionLanguage,
			TimeoutSeconds:     defaultTranscribeTimeout,
			UnloadAfterSeconds: defaultUnloadAfterSeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Jobs: Jobs{
			MaxRetries:         defaultJobMaxRetries,
			BackoffBaseSeconds: defaultBackoffBaseSeconds,
			BackoffMaxSeconds:  defaultBackoffMaxSeconds,
			PollInterval:       defaultJobPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Coordinator: Coordinator{
			MaxRunning:            defaultMaxRunning,
			RetentionSeconds:      defaultRetentionSeconds,
			ProgressBucketPercent: defaultProgressBucket,
		},
		Events: Events{
			CleanupIntervalSeconds: defaultCleanupInterval,
			CleanupThreshold:       defaultCleanupThreshold,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			MemoDetected:   true,
			Transcription:  true,
			MemoReady:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
