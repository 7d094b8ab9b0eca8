package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and writing prompts to out
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for provider credentials and service settings, starting from base
func (w *Wizard) Run(base *Config) (*Config, error) {
	if base == nil {
		base = DefaultConfig()
	}
	cfg := *base
	validator := NewValidator()

	fmt.Fprintln(w.out, "=== Conduit Configuration Wizard ===")
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Model providers (at least one is required):")
	fmt.Fprintln(w.out)

	keys := []struct {
		provider string
		label    string
		target   *string
	}{
		{"anthropic", "Anthropic API Key", &cfg.Providers.Anthropic.APIKey},
		{"openai", "OpenAI API Key", &cfg.Providers.OpenAI.APIKey},
		{"gemini", "Gemini API Key", &cfg.Providers.Gemini.APIKey},
	}
	for _, k := range keys {
		key, err := w.askValid(k.label+" (press Enter to skip): ", func(s string) error {
			return validator.ValidateAPIKey(s, k.provider)
		})
		if err != nil {
			return nil, err
		}
		if key != "" {
			*k.target = key
		}
	}

	enable, err := w.ask("Use AWS Bedrock with the default credential chain? (y/n) [n]: ")
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(enable, "y") {
		cfg.Providers.Bedrock.Enabled = true
		region, err := w.ask(fmt.Sprintf("AWS region [%s]: ", cfg.Providers.Bedrock.Region))
		if err != nil {
			return nil, err
		}
		if region != "" {
			cfg.Providers.Bedrock.Region = region
		}
	}

	if len(cfg.Providers.Configured()) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}

	fmt.Fprintln(w.out)
	model, err := w.ask(fmt.Sprintf("Default model [%s]: ", cfg.Gateway.DefaultModel))
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.Gateway.DefaultModel = model
	}

	level, err := w.ask(fmt.Sprintf("Log level (debug/info/warn/error) [%s]: ", cfg.Logging.Level))
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Logging.Level)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return &cfg, nil
}

// askValid repeats the prompt until the answer is empty or passes check
func (w *Wizard) askValid(prompt string, check func(string) error) (string, error) {
	for {
		answer, err := w.ask(prompt)
		if err != nil {
			return "", err
		}
		if answer == "" {
			return "", nil
		}
		if err := check(answer); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		return answer, nil
	}
}

func (w *Wizard) ask(prompt string) (string, error) {
	fmt.Fprint(w.out, prompt)
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
