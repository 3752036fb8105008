package chat

import (
	"context"
	"strings"
)

// LanguageResolver decides which language a request is answered in.
type LanguageResolver interface {
	Resolve(ctx context.Context, requested string) string
}

// DefaultResolver uses the requested language, or Fallback when none was given.
type DefaultResolver struct {
	Fallback string
}

func (d DefaultResolver) Resolve(_ context.Context, requested string) string {
	if lang := normalizeLanguage(requested); lang != "" {
		return lang
	}
	return d.Fallback
}

type acceptLanguageKey struct{}

// WithAcceptLanguage stores an Accept-Language header value in ctx.
func WithAcceptLanguage(ctx context.Context, header string) context.Context {
	return context.WithValue(ctx, acceptLanguageKey{}, header)
}

// AcceptLanguageResolver falls back to the first supported language in the
// caller's Accept-Language header before using Fallback.
type AcceptLanguageResolver struct {
	Supported []string
	Fallback  string
}

func (a AcceptLanguageResolver) Resolve(ctx context.Context, requested string) string {
	if lang := normalizeLanguage(requested); lang != "" {
		return lang
	}
	header, _ := ctx.Value(acceptLanguageKey{}).(string)
	for _, part := range strings.Split(header, ",") {
		tag, _, _ := strings.Cut(part, ";")
		lang := normalizeLanguage(tag)
		for _, s := range a.Supported {
			if lang != "" && lang == s {
				return lang
			}
		}
	}
	return a.Fallback
}

// normalizeLanguage reduces a tag like "fr-CA" to "fr".
func normalizeLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	primary, _, _ := strings.Cut(tag, "-")
	primary, _, _ = strings.Cut(primary, "_")
	if primary == "*" {
		return ""
	}
	return primary
}
