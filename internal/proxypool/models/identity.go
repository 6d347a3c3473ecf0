package models

import (
	"fmt"
	"sync"

	"github.com/SolarDomo/HttpData/internal/transport"
	"github.com/rs/xid"
)

// Identity is one egress route: a proxy endpoint with credentials, or the direct
// connection when Endpoint is empty. Cookies stick to the identity across checkouts.
type Identity struct {
	ID string `gorm:"PRIMARY_KEY;"`

	Endpoint string `gorm:"index"`
	User     string
	Password string

	TaskID string `gorm:"-"`

	cookieMutex sync.Mutex
	cookies     map[string]string
}

func NewIdentity(endpoint, user, password string) *Identity {
	return &Identity{
		ID:       xid.New().String(),
		Endpoint: endpoint,
		User:     user,
		Password: password,
	}
}

func Direct() *Identity {
	return NewIdentity("", "", "")
}

func (this *Identity) IsDirect() bool {
	return this.Endpoint == ""
}

// DialAddress is the proxy address in the form the fasthttp proxy dialer accepts.
func (this *Identity) DialAddress() string {
	return transport.ProxyDialAddress(this.Endpoint, this.User, this.Password)
}

func (this *Identity) Cookies() map[string]string {
	this.cookieMutex.Lock()
	defer this.cookieMutex.Unlock()

	cookies := make(map[string]string, len(this.cookies))
	for k, v := range this.cookies {
		cookies[k] = v
	}
	return cookies
}

func (this *Identity) SetCookie(key, value string) {
	this.cookieMutex.Lock()
	defer this.cookieMutex.Unlock()

	if this.cookies == nil {
		this.cookies = make(map[string]string)
	}
	this.cookies[key] = value
}

// Equal compares endpoint and user; ids and passwords are ignored.
func (this *Identity) Equal(identity *Identity) bool {
	if identity == nil {
		return false
	}
	return this.Endpoint == identity.Endpoint && this.User == identity.User
}

// String never prints the password.
func (this *Identity) String() string {
	if this.IsDirect() {
		return fmt.Sprintf("direct(%s)", this.ID)
	}
	if this.User == "" {
		return fmt.Sprintf("%s(%s)", this.Endpoint, this.ID)
	}
	return fmt.Sprintf("%s@%s(%s)", this.User, this.Endpoint, this.ID)
}

var _ transport.CookieJar = (*Identity)(nil)
