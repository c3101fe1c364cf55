package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LicensePolicy carries the hot-reloadable licensing knobs read from licensing.yml.
type LicensePolicy struct {
	// StrictStatusTransitions forbids moving a license out of cancelled.
	StrictStatusTransitions bool `mapstructure:"strictStatusTransitions"`
	// ReactivationBypassesLimit lets a previously deactivated domain come back
	// even when the active count already sits at the package limit.
	ReactivationBypassesLimit bool `mapstructure:"reactivationBypassesLimit"`
	// DefaultDomainLimit applies when a package leaves domain_limit unset.
	// Zero means unlimited.
	DefaultDomainLimit int `mapstructure:"defaultDomainLimit"`
	// ExpiryGracePeriod delays the expire_licenses job after expires_at.
	ExpiryGracePeriod time.Duration `mapstructure:"expiryGracePeriod"`
	// UploadMaxBytes caps a single CSV upload.
	UploadMaxBytes int64 `mapstructure:"uploadMaxBytes"`
}

func DefaultLicensePolicy() LicensePolicy {
	return LicensePolicy{
		StrictStatusTransitions:   false,
		ReactivationBypassesLimit: true,
		DefaultDomainLimit:        0,
		ExpiryGracePeriod:         0,
		UploadMaxBytes:            5 << 20,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds LicensePolicy
}

// NewStaticPolicyHolder returns a holder pinned to policy, without a file watch.
func NewStaticPolicyHolder(policy LicensePolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder(cfg Config) (*PolicyHolder, error) {
	v := viper.New()

	if cfg.PolicyPath != "" {
		v.SetConfigFile(cfg.PolicyPath)
	} else {
		v.SetConfigName("licensing")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/licensor/config")
		v.AddConfigPath("/etc/licensor")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LICENSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLicensePolicy()
	v.SetDefault("license.strictStatusTransitions", defaults.StrictStatusTransitions)
	v.SetDefault("license.reactivationBypassesLimit", defaults.ReactivationBypassesLimit)
	v.SetDefault("license.defaultDomainLimit", defaults.DefaultDomainLimit)
	v.SetDefault("license.expiryGracePeriod", defaults.ExpiryGracePeriod)
	v.SetDefault("license.uploadMaxBytes", defaults.UploadMaxBytes)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !watch {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			zap.L().Warn("licensing policy reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.Set(updated)
		zap.L().Info("licensing policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PolicyHolder) Get() LicensePolicy {
	if h == nil {
		return DefaultLicensePolicy()
	}
	return h.current.Load().(LicensePolicy)
}

// Set replaces the current policy.
func (h *PolicyHolder) Set(policy LicensePolicy) {
	h.current.Store(policy)
}

func decodePolicy(v *viper.Viper) (LicensePolicy, error) {
	// Unmarshal over all settings so defaults fill keys the file omits.
	var wrapper struct {
		License LicensePolicy `mapstructure:"license"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return LicensePolicy{}, err
	}
	if err := validatePolicy(wrapper.License); err != nil {
		return LicensePolicy{}, err
	}
	return wrapper.License, nil
}

func validatePolicy(policy LicensePolicy) error {
	if policy.DefaultDomainLimit < 0 {
		return errors.New("license.defaultDomainLimit cannot be negative")
	}
	if policy.ExpiryGracePeriod < 0 {
		return errors.New("license.expiryGracePeriod cannot be negative")
	}
	if policy.UploadMaxBytes <= 0 {
		return errors.New("license.uploadMaxBytes must be positive")
	}
	return nil
}
