package config

import (
	"os"
	"testing"
)

func setEngineKeys(t *testing.T) {
	t.Helper()
	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	os.Setenv("ASSEMBLYAI_API_KEY", "test-assemblyai-key")
	t.Cleanup(func() {
		os.Unsetenv("DEEPGRAM_API_KEY")
		os.Unsetenv("ASSEMBLYAI_API_KEY")
	})
}

func TestLoad(t *testing.T) {
	setEngineKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}

	if cfg.AssemblyAIAPIKey != "test-assemblyai-key" {
		t.Errorf("Expected AssemblyAIAPIKey 'test-assemblyai-key', got '%s'", cfg.AssemblyAIAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("ASSEMBLYAI_API_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when engine credentials are missing")
	}
}

func TestLoad_MockEnginesNeedNoKeys(t *testing.T) {
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("ASSEMBLYAI_API_KEY")
	os.Setenv("ENGINES", "mock,mock")
	defer os.Unsetenv("ENGINES")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Engines) != 2 || cfg.Engines[0] != "mock" {
		t.Errorf("Expected engines [mock mock], got %v", cfg.Engines)
	}
}

func TestLoad_UnknownEngine(t *testing.T) {
	os.Setenv("ENGINES", "whisperx")
	defer os.Unsetenv("ENGINES")

	_, err := Load()
	if err == nil {
		t.Error("Expected error for unknown engine name")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEngineKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}

	if cfg.DeepgramLanguage != "en" {
		t.Errorf("Expected default DeepgramLanguage 'en', got '%s'", cfg.DeepgramLanguage)
	}

	if cfg.EngineTimeout != 10 {
		t.Errorf("Expected default EngineTimeout 10, got %d", cfg.EngineTimeout)
	}

	if cfg.ContextWindow != 5 {
		t.Errorf("Expected default ContextWindow 5, got %d", cfg.ContextWindow)
	}

	if cfg.SessionTimeoutMinutes != 60 {
		t.Errorf("Expected default SessionTimeoutMinutes 60, got %d", cfg.SessionTimeoutMinutes)
	}

	if cfg.SampleRate != 16000 {
		t.Errorf("Expected default SampleRate 16000, got %d", cfg.SampleRate)
	}

	if cfg.MaxChunkBytes != 10485760 {
		t.Errorf("Expected default MaxChunkBytes 10485760, got %d", cfg.MaxChunkBytes)
	}

	if cfg.ArbiterEndpoint != "" {
		t.Errorf("Expected arbiter disabled by default, got '%s'", cfg.ArbiterEndpoint)
	}
}

func TestLoad_PrimaryEngine(t *testing.T) {
	setEngineKeys(t)
	os.Setenv("ENGINES", "assemblyai,deepgram")
	defer os.Unsetenv("ENGINES")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.PrimaryEngine() != "assemblyai" {
		t.Errorf("Expected primary engine 'assemblyai', got '%s'", cfg.PrimaryEngine())
	}
}

func TestLoadFromEnv(t *testing.T) {
	setEngineKeys(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	setEngineKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}

	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}

	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("Expected default ReconnectMaxAttempts 5, got %d", cfg.ReconnectMaxAttempts)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	setEngineKeys(t)
	// Clear LOG_LEVEL to ensure we get the default
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
