package verify

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"
)

const (
	codeExpiry = 5 * time.Minute
	// Codes are 5-digit, drawn uniformly from [10000, 99999].
	codeSpan = 90000
	codeBase = 10000
)

type challenge struct {
	code      string
	expiresAt time.Time
	timer     *time.Timer
}

// Issuer hands out one-time verification codes per phone number. There is no
// SMS gateway: the code is surfaced on the operational log, which makes this
// a development/trust stand-in rather than a security boundary. At most one
// live challenge exists per number; reissuing replaces the old one.
type Issuer struct {
	mu         sync.Mutex
	challenges map[string]*challenge

	rng *rand.Rand
	now func() time.Time
}

// NewIssuer creates an issuer with its own RNG.
func NewIssuer() *Issuer {
	return &Issuer{
		challenges: make(map[string]*challenge),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}
}

// Issue generates a fresh code for the phone number, replacing any prior
// challenge, and schedules its expiry.
func (i *Issuer) Issue(phone string) string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if old, ok := i.challenges[phone]; ok && old.timer != nil {
		old.timer.Stop()
	}

	code := fmt.Sprintf("%05d", codeBase+i.rng.Intn(codeSpan))
	ch := &challenge{
		code:      code,
		expiresAt: i.now().Add(codeExpiry),
	}
	ch.timer = time.AfterFunc(codeExpiry, func() { i.expire(phone, ch) })
	i.challenges[phone] = ch

	log.Printf("verify: login code for %s: %s", phone, code)
	return code
}

// Verify checks the code against the live challenge for the phone number and
// consumes the challenge on success. It fails closed: a missing, expired or
// mismatched challenge is simply invalid. Expiry is also checked lazily here
// so a code issued just over five minutes ago is rejected even if its timer
// has not fired yet.
func (i *Issuer) Verify(phone, code string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	ch, ok := i.challenges[phone]
	if !ok {
		return false
	}
	if !i.now().Before(ch.expiresAt) {
		ch.timer.Stop()
		delete(i.challenges, phone)
		return false
	}
	if ch.code != code {
		return false
	}

	ch.timer.Stop()
	delete(i.challenges, phone)
	return true
}

// expire removes the challenge if it is still the one the timer was armed
// for; a reissue in the meantime must not be swept away.
func (i *Issuer) expire(phone string, ch *challenge) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if cur, ok := i.challenges[phone]; ok && cur == ch {
		delete(i.challenges, phone)
	}
}
