package providers

import (
	"github.com/samber/do/v2"
	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/app/auth"
	"github.com/mytheresa/go-storefront/internal/audit"
	"github.com/mytheresa/go-storefront/internal/config"
	"github.com/mytheresa/go-storefront/internal/mailer"
	"github.com/mytheresa/go-storefront/internal/markup"
	"github.com/mytheresa/go-storefront/internal/ratelimit"
	"github.com/mytheresa/go-storefront/internal/recaptcha"
	"github.com/mytheresa/go-storefront/internal/security"
	"github.com/mytheresa/go-storefront/internal/upload"
	"github.com/mytheresa/go-storefront/internal/validation"
	"github.com/mytheresa/go-storefront/models"
)

func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

func ProvideHasher(i do.Injector) (*security.Hasher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return security.NewHasher(cfg.Auth.BcryptCost), nil
}

func ProvideMarkup(i do.Injector) (*markup.Renderer, error) {
	return markup.New(), nil
}

// ProvideUploadStore provides the product image store, creating its directory if needed.
func ProvideUploadStore(i do.Injector) (*upload.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return upload.NewStore(cfg.Uploads.Dir, cfg.Uploads.MaxBytes)
}

func ProvideActivityRecorder(i do.Injector) (*audit.Recorder, error) {
	repo := do.MustInvoke[*models.ActivityRepository](i)
	log := do.MustInvoke[*zap.Logger](i)
	return audit.NewRecorder(repo, log), nil
}

// ProvideMailer sends through SMTP when a host is configured and logs messages otherwise.
func ProvideMailer(i do.Injector) (*mailer.Mailer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*zap.Logger](i)

	var sender mailer.Sender
	if cfg.Mail.Host != "" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		log.Info("Mail delivery via SMTP", zap.String("host", cfg.Mail.Host), zap.Int("port", cfg.Mail.Port))
	} else {
		sender = mailer.NewLogSender(log)
		log.Warn("MAIL_HOST not set, outgoing mail is logged instead of sent")
	}

	return mailer.New(sender, mailer.Config{
		AppName:      cfg.App.Name,
		BaseURL:      cfg.App.BaseURL,
		AdminAddress: cfg.Mail.AdminAddress,
	})
}

func ProvideRecaptcha(i do.Injector) (*recaptcha.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*zap.Logger](i)

	client := recaptcha.New(recaptcha.Config{
		SecretKey: cfg.Recaptcha.SecretKey,
		MinScore:  cfg.Recaptcha.MinScore,
		Timeout:   cfg.Recaptcha.Timeout,
	}, log)
	if !client.Enabled() {
		log.Warn("RECAPTCHA_SECRET_KEY not set, captcha verification is disabled")
	}
	return client, nil
}

// ProvideRateLimiter provides the per-IP limiter for sensitive forms. The container stops its
// cleanup goroutine on shutdown.
func ProvideRateLimiter(i do.Injector) (*ratelimit.KeyedRateLimiter, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst), nil
}

func ProvideAuthService(i do.Injector) (*auth.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*zap.Logger](i)

	return auth.NewService(
		do.MustInvoke[*models.UsersRepository](i),
		do.MustInvoke[*models.TokensRepository](i),
		do.MustInvoke[*mailer.Mailer](i),
		do.MustInvoke[*security.Hasher](i),
		do.MustInvoke[*validation.Validator](i),
		auth.Config{
			ActivationTTL:    cfg.Auth.ActivationTTL,
			PasswordResetTTL: cfg.Auth.PasswordResetTTL,
			RememberMeTTL:    cfg.Auth.RememberMeTTL,
		},
		log,
	), nil
}
