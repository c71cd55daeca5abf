// Command quito-uri parses MQTT broker URIs, or builds full connection
// options from flags and QUITO_ environment variables, and prints the
// result as YAML.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/saaga0h/quito/pkg/broker"
	"github.com/saaga0h/quito/pkg/config"
)

type uriResult struct {
	URI      string           `yaml:"uri"`
	Host     string           `yaml:"host,omitempty"`
	Port     int              `yaml:"port"`
	Protocol *broker.Protocol `yaml:"protocol,omitempty"`
	TLS      bool             `yaml:"tls"`
	Error    string           `yaml:"error,omitempty"`
}

type optionsView struct {
	BrokerURL       string          `yaml:"broker_url"`
	ClientID        string          `yaml:"client_id"`
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	Protocol        broker.Protocol `yaml:"protocol"`
	TLS             bool            `yaml:"tls"`
	Username        string          `yaml:"username,omitempty"`
	PasswordSet     bool            `yaml:"password_set"`
	KeepAlive       string          `yaml:"keepalive"`
	ConnectTimeout  string          `yaml:"connect_timeout"`
	ReconnectPeriod string          `yaml:"reconnect_period"`
	CleanSession    bool            `yaml:"clean_session"`
	ProtocolLevel   int             `yaml:"protocol_level"`
	WillTopic       string          `yaml:"will_topic,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg := config.NewConfig()
	cfg.ServiceName = "quito-uri"
	cfg.LoadFromEnv()

	fs := pflag.NewFlagSet("quito-uri", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: quito-uri [URI...]")
		fmt.Fprintln(stderr, "       quito-uri --build [flags]")
		fs.PrintDefaults()
	}
	build := fs.Bool("build", false, "Build full connection options from flags and environment")
	cfg.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 2
	}

	if *build {
		return buildOptions(cfg, stdout, stderr)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	return parseURIs(fs.Args(), stdout, stderr)
}

func parseURIs(uris []string, stdout, stderr io.Writer) int {
	code := 0
	results := make([]uriResult, 0, len(uris))
	for _, raw := range uris {
		u, err := broker.ParseURI(raw)
		if err != nil {
			results = append(results, uriResult{URI: raw, Error: err.Error()})
			code = 1
			continue
		}
		results = append(results, uriResult{
			URI:      u.String(),
			Host:     u.Host,
			Port:     u.Port,
			Protocol: &u.Protocol,
			TLS:      u.TLS,
		})
	}

	if err := writeYAML(stdout, results); err != nil {
		fmt.Fprintf(stderr, "Failed to write output: %v\n", err)
		return 1
	}
	return code
}

func buildOptions(cfg *config.Config, stdout, stderr io.Writer) int {
	opts, err := cfg.BrokerOptions(broker.DefaultIDGenerator)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	view := optionsView{
		BrokerURL:       opts.BrokerURL(),
		ClientID:        opts.ClientID,
		Host:            opts.Host,
		Port:            opts.Port,
		Protocol:        opts.Protocol,
		TLS:             opts.TLS,
		Username:        opts.Username,
		PasswordSet:     opts.Password != "",
		KeepAlive:       opts.KeepAlive.String(),
		ConnectTimeout:  opts.ConnectTimeout.String(),
		ReconnectPeriod: opts.ReconnectPeriod.String(),
		CleanSession:    opts.CleanSession,
		ProtocolLevel:   opts.ProtocolLevel,
	}
	if opts.Will != nil {
		view.WillTopic = opts.Will.Topic
	}

	if err := writeYAML(stdout, view); err != nil {
		fmt.Fprintf(stderr, "Failed to write output: %v\n", err)
		return 1
	}
	return 0
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
