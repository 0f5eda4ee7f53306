package resolver

import (
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"

	"github.com/scentdesk/fragrance-cli/internal/ledger"
	"github.com/scentdesk/fragrance-cli/internal/provider"
	"github.com/scentdesk/fragrance-cli/internal/resilience"
)

// Code is a stable machine-readable error class. Codes never change once
// published; clients branch on them.
type Code string

const (
	CodeInvalidArgument      Code = "invalid_argument"
	CodeProviderUnavailable  Code = "provider_unavailable"
	CodeUnknownProvider      Code = "unknown_provider"
	CodeRateLimited          Code = "rate_limited"
	CodeUpstreamError        Code = "upstream_error"
	CodeMalformedResponse    Code = "malformed_response"
	CodeDailyLimitExceeded   Code = "daily_limit_exceeded"
	CodeMonthlyLimitExceeded Code = "monthly_limit_exceeded"
	CodeRateLimitExceeded    Code = "rate_limit_exceeded"
	CodeNoProviderAvailable  Code = "no_provider_available"
)

// ErrInvalidArgument marks caller input rejected before any provider call.
var ErrInvalidArgument = eris.New("invalid argument")

// ErrNoProviderAvailable means no adapter could be selected at all.
var ErrNoProviderAvailable = eris.New("no provider available")

// Classify maps any pipeline error onto its stable code. Unrecognized
// errors classify as upstream failures; the pipeline only errors on input,
// limits, or the provider leg.
func Classify(err error) Code {
	var dailyErr *ledger.DailyLimitError
	var monthlyErr *ledger.MonthlyLimitError
	var rateErr *ledger.RateLimitError
	var malformed *provider.MalformedResponseError
	var upstream *provider.UpstreamError

	switch {
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrNoProviderAvailable):
		return CodeNoProviderAvailable
	case errors.As(err, &dailyErr):
		return CodeDailyLimitExceeded
	case errors.As(err, &monthlyErr):
		return CodeMonthlyLimitExceeded
	case errors.As(err, &rateErr):
		return CodeRateLimitExceeded
	case errors.Is(err, provider.ErrUnknownProvider):
		return CodeUnknownProvider
	case errors.Is(err, provider.ErrProviderUnavailable),
		errors.Is(err, resilience.ErrBreakerOpen):
		return CodeProviderUnavailable
	case resilience.IsRateLimited(err):
		return CodeRateLimited
	case errors.As(err, &malformed):
		return CodeMalformedResponse
	case errors.As(err, &upstream):
		return CodeUpstreamError
	default:
		return CodeUpstreamError
	}
}

// HTTPStatus maps a code to its transport status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument, CodeUnknownProvider:
		return http.StatusBadRequest
	case CodeRateLimited, CodeRateLimitExceeded, CodeDailyLimitExceeded, CodeMonthlyLimitExceeded:
		return http.StatusTooManyRequests
	case CodeProviderUnavailable, CodeNoProviderAvailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

var supportedLangs = []language.Tag{language.English, language.Japanese}
var langMatcher = language.NewMatcher(supportedLangs)

// userMessages holds the localized client-facing text per code. Raw
// upstream bodies never appear here; they go to the log only.
var userMessages = map[language.Tag]map[Code]string{
	language.English: {
		CodeInvalidArgument:      "The request input is empty or invalid.",
		CodeProviderUnavailable:  "The AI provider is not available right now.",
		CodeUnknownProvider:      "The requested AI provider is not recognized.",
		CodeRateLimited:          "The AI provider is rate limiting requests. Try again shortly.",
		CodeUpstreamError:        "The AI provider returned an error.",
		CodeMalformedResponse:    "The AI provider returned an unusable response.",
		CodeDailyLimitExceeded:   "Your daily cost limit has been reached.",
		CodeMonthlyLimitExceeded: "Your monthly cost limit has been reached.",
		CodeRateLimitExceeded:    "Too many requests this hour. Try again later.",
		CodeNoProviderAvailable:  "No AI provider is configured.",
	},
	language.Japanese: {
		CodeInvalidArgument:      "入力が空か不正です。",
		CodeProviderUnavailable:  "AIプロバイダーは現在利用できません。",
		CodeUnknownProvider:      "指定されたAIプロバイダーは認識されません。",
		CodeRateLimited:          "AIプロバイダーがリクエストを制限しています。しばらくしてから再試行してください。",
		CodeUpstreamError:        "AIプロバイダーがエラーを返しました。",
		CodeMalformedResponse:    "AIプロバイダーの応答を解析できませんでした。",
		CodeDailyLimitExceeded:   "1日のコスト上限に達しました。",
		CodeMonthlyLimitExceeded: "今月のコスト上限に達しました。",
		CodeRateLimitExceeded:    "1時間あたりのリクエスト数が上限に達しました。後でもう一度お試しください。",
		CodeNoProviderAvailable:  "AIプロバイダーが設定されていません。",
	},
}

// Message returns the localized client-facing text for a code. acceptLang
// is an Accept-Language header value or a bare tag; anything unparseable
// falls back to English.
func Message(code Code, acceptLang string) string {
	tag := language.English
	if acceptLang != "" {
		if tags, _, err := language.ParseAcceptLanguage(acceptLang); err == nil {
			_, idx, _ := langMatcher.Match(tags...)
			tag = supportedLangs[idx]
		}
	}
	if msg, ok := userMessages[tag][code]; ok {
		return msg
	}
	return userMessages[language.English][code]
}
