// SPDX-FileCopyrightText: 2025 The tracklight Authors
// SPDX-License-Identifier: Apache-2.0
package tracklight

import (
	"context"
	"regexp"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// UserAgentSuffix identifies this library in every resolved identification
// string.  It is also the complete fallback value when no probe is available
// or the probe fails.
const UserAgentSuffix = "TracklightTracker SDK tracklight-go"

// deviceTokenPattern matches the device-model token reported by mobile
// browser engines, e.g. "(iPhone;".  A match is rewritten with the token for
// the hardware this process actually runs on.
var deviceTokenPattern = regexp.MustCompile(`(?i)\((iPad|iPhone);`)

// UserAgentProbe is a one-shot oracle for a browser engine's self-reported
// identification string.  Implementations are consulted at most once per
// resolver and discarded afterward.
type UserAgentProbe interface {
	Probe(ctx context.Context) (string, error)
}

// UserAgentProbeFunc adapts an ordinary function to the UserAgentProbe interface.
type UserAgentProbeFunc func(ctx context.Context) (string, error)

func (f UserAgentProbeFunc) Probe(ctx context.Context) (string, error) { return f(ctx) }

// PlatformTokenFunc supplies the device-model token substituted into probed
// identification strings.
type PlatformTokenFunc func() string

func defaultPlatformToken() string {
	switch runtime.GOOS {
	case "darwin":
		return "Macintosh"
	case "windows":
		return "Windows"
	default:
		return "Linux"
	}
}

// UserAgentResolver lazily resolves the identification string sent as the
// User-Agent header.  The value is written at most once and read many times:
// readers observe either no value yet or the final value, never anything in
// between.  A resolver constructed with an explicit value never probes.
type UserAgentResolver struct {
	logger        *zap.Logger
	probe         UserAgentProbe
	platformToken PlatformTokenFunc

	resolveOnce sync.Once
	value       atomic.Pointer[string]
}

// NewUserAgentResolver constructs a resolver.  A non-empty explicit value is
// stored verbatim and suppresses the probe entirely.  Otherwise, if a probe
// is supplied, resolution proceeds asynchronously; with no probe (a headless
// platform) the value resolves immediately to UserAgentSuffix alone.  A nil
// platformToken falls back to a token derived from the running OS.
func NewUserAgentResolver(logger *zap.Logger, explicit string, probe UserAgentProbe, platformToken PlatformTokenFunc) *UserAgentResolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	if platformToken == nil {
		platformToken = defaultPlatformToken
	}

	r := &UserAgentResolver{
		logger:        logger,
		probe:         probe,
		platformToken: platformToken,
	}

	switch {
	case len(explicit) > 0:
		r.store(explicit)
	case probe == nil:
		r.logger.Debug("no user agent probe available, using fallback", zap.String("userAgent", UserAgentSuffix))
		r.store(UserAgentSuffix)
	default:
		go r.resolve()
	}

	return r
}

// Current returns the identification string resolved so far.  It never
// blocks: before resolution finishes it reports false, afterward it reports
// the final value forever.
func (r *UserAgentResolver) Current() (string, bool) {
	if v := r.value.Load(); v != nil {
		return *v, true
	}

	return "", false
}

func (r *UserAgentResolver) store(value string) {
	r.value.Store(&value)
}

// resolve performs the single probe attempt.  Every failure mode degrades to
// the fallback suffix; nothing propagates to callers.
func (r *UserAgentResolver) resolve() {
	r.resolveOnce.Do(func() {
		base := ""
		raw, err := r.probe.Probe(context.Background())
		if err != nil {
			r.logger.Debug("user agent probe failed, using fallback", zap.Error(err))
		} else if deviceTokenPattern.MatchString(raw) {
			base = deviceTokenPattern.ReplaceAllString(raw, "("+r.platformToken()+";")
		}

		userAgent := UserAgentSuffix
		if len(base) > 0 {
			userAgent = base + " " + UserAgentSuffix
		}

		r.store(userAgent)
		r.logger.Debug("user agent resolved", zap.String("userAgent", userAgent))
	})
}
