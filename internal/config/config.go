// Package config loads node settings from flags and ZEPHYRDHT_* environment
// variables and validates them.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/gossip"
)

const EnvPrefix = "ZEPHYRDHT"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	// Listen is the IPv4 UDP address peers reach this node on; it is also
	// the node's identity.
	Listen string `mapstructure:"listen" validate:"required,hostname_port"`
	// Introducer is the node to join through. Empty means etcd decides, or
	// this node starts the group when etcd is not configured.
	Introducer string `mapstructure:"introducer" validate:"omitempty,hostname_port"`
	HTTPAddr   string `mapstructure:"http-addr" validate:"required"`

	RoundInterval  time.Duration `mapstructure:"round-interval" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request-timeout" validate:"gt=0"`
	QueueSize      int           `mapstructure:"queue-size" validate:"gte=1"`

	SuspectAfter int64 `mapstructure:"suspect-after" validate:"gt=0"`
	RemoveAfter  int64 `mapstructure:"remove-after" validate:"gtfield=SuspectAfter"`
	Fanout       int   `mapstructure:"fanout" validate:"gte=1"`
	JoinRetry    int64 `mapstructure:"join-retry" validate:"gt=0"`
	TxnTTL       int64 `mapstructure:"txn-ttl" validate:"gt=0"`

	EtcdEndpoints []string `mapstructure:"etcd-endpoints" validate:"dive,required"`
	EtcdPrefix    string   `mapstructure:"etcd-prefix" validate:"required,startswith=/"`
	LeaseTTL      int64    `mapstructure:"lease-ttl" validate:"gt=0"`

	LogDev bool `mapstructure:"log-dev"`
}

func Default() Config {
	g := gossip.DefaultConfig()
	return Config{
		Listen:         "127.0.0.1:7000",
		HTTPAddr:       ":8080",
		RoundInterval:  100 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
		QueueSize:      4096,
		SuspectAfter:   g.SuspectAfter,
		RemoveAfter:    g.RemoveAfter,
		Fanout:         g.Fanout,
		JoinRetry:      g.JoinRetry,
		TxnTTL:         15,
		EtcdPrefix:     "/zephyrdht",
		LeaseTTL:       10,
	}
}

// BindFlags registers one flag per field, defaulted from Default.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("listen", d.Listen, "UDP address (IPv4 host:port) for peer traffic; also the node identity")
	fs.String("introducer", d.Introducer, "peer to join through (host:port)")
	fs.String("http-addr", d.HTTPAddr, "HTTP listen address for the client API and metrics")
	fs.Duration("round-interval", d.RoundInterval, "wall-clock length of one protocol round")
	fs.Duration("request-timeout", d.RequestTimeout, "how long an HTTP request waits for its quorum")
	fs.Int("queue-size", d.QueueSize, "inbound datagram queue size")
	fs.Int64("suspect-after", d.SuspectAfter, "rounds without news before a peer stops being gossiped")
	fs.Int64("remove-after", d.RemoveAfter, "rounds without news before a peer is removed")
	fs.Int("fanout", d.Fanout, "peers gossiped to per round")
	fs.Int64("join-retry", d.JoinRetry, "rounds between join attempts")
	fs.Int64("txn-ttl", d.TxnTTL, "rounds before an unanswered operation fails")
	fs.StringSlice("etcd-endpoints", d.EtcdEndpoints, "etcd endpoints for discovery; empty disables it")
	fs.String("etcd-prefix", d.EtcdPrefix, "etcd key prefix")
	fs.Int64("lease-ttl", d.LeaseTTL, "etcd registration lease TTL in seconds")
	fs.Bool("log-dev", d.LogDev, "human-readable development logging")
}

// Load reads flags, then ZEPHYRDHT_* variables (dashes become underscores),
// then defaults, and validates the result.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, err
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(cfg.EtcdEndpoints) == 0 {
		cfg.EtcdEndpoints = nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field rules and that Listen names an IPv4 address.
func (c Config) Validate() error {
	validate, trans := newValidator()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fe.Translate(trans))
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	if _, err := c.Address(); err != nil {
		return fmt.Errorf("%w: listen: %w", ErrInvalid, err)
	}
	if c.Introducer != "" {
		if _, err := address.FromHostPort(c.Introducer, ""); err != nil {
			return fmt.Errorf("%w: introducer: %w", ErrInvalid, err)
		}
	}
	return nil
}

// Address is the node identity derived from Listen.
func (c Config) Address() (address.Address, error) {
	return address.FromHostPort(c.Listen, "")
}

func (c Config) Gossip() gossip.Config {
	return gossip.Config{
		SuspectAfter: c.SuspectAfter,
		RemoveAfter:  c.RemoveAfter,
		Fanout:       c.Fanout,
		JoinRetry:    c.JoinRetry,
	}
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")
	if err := enTranslation.RegisterDefaultTranslations(validate, trans); err != nil {
		panic(fmt.Errorf("translator was not registered: %w", err))
	}
	// report fields by their flag names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return validate, trans
}
