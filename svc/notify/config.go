package notify

type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"billing@localhost"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@localhost"`
	Locale               string `env:"NOTIFY_LOCALE" envDefault:"en"`
}

// Enabled reports whether a Postmark server token is configured.
func (c Config) Enabled() bool {
	return c.PostmarkServerToken != ""
}
