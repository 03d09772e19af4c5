package config

const (
	defaultConfigPath           = "~/.config/meico/config.toml"
	defaultScratchDir           = "~/.local/share/meico/scratch"
	defaultLogDir               = "~/.local/share/meico/logs"
	defaultSoundbankDir         = "~/.local/share/meico/soundbanks"
	defaultJavaBinary           = "java"
	defaultJarPath              = "~/.local/share/meico/meico.jar"
	defaultBridgeClass          = "meico.app.Bridge"
	defaultTicksPerBeat         = 720
	defaultServiceBind          = "127.0.0.1:8001"
	defaultMaxUploadMiB         = 32
	defaultTempo                = 120.0
	defaultRetryIntervalSeconds = 5
	defaultStaleAfterMinutes    = 60
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ScratchDir:   defaultScratchDir,
			LogDir:       defaultLogDir,
			SoundbankDir: defaultSoundbankDir,
		},
		Engine: Engine{
			JavaBinary:   defaultJavaBinary,
			JarPath:      defaultJarPath,
			BridgeClass:  defaultBridgeClass,
			TicksPerBeat: defaultTicksPerBeat,
		},
		Service: Service{
			Bind:         defaultServiceBind,
			MaxUploadMiB: defaultMaxUploadMiB,
		},
		Defaults: Defaults{
			Tempo: defaultTempo,
		},
		Cleanup: Cleanup{
			RetryIntervalSeconds: defaultRetryIntervalSeconds,
			StaleAfterMinutes:    defaultStaleAfterMinutes,
		},
		Soundbanks: map[string]string{},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
