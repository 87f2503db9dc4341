package momo

import "time"

type Config struct {
	Endpoint    string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	RedirectURL string
	IPNURL      string
	RequestType string
	Timeout     time.Duration
}
