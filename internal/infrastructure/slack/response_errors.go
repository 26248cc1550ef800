package slack

import (
	"regexp"

	"github.com/slack-go/slack"

	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
)

const codeMigrationInProgress = "migration_in_progress"

type responseCode struct {
	message   string
	transient bool
}

// responseCodes maps Web API error codes to readable messages. Unknown
// codes fall back to "unspecified error".
var responseCodes = map[string]responseCode{
	"account_inactive":       {message: "authentication token is for a deleted user or workspace"},
	"already_reacted":        {message: "the specified item already has the user/reaction combination"},
	"bad_timestamp":          {message: "value passed for timestamp was invalid"},
	"cant_update_message":    {message: "this message cannot be updated by the authenticated user"},
	"channel_not_found":      {message: "value passed for channel was invalid"},
	"edit_window_closed":     {message: "the message cannot be edited due to the team message edit settings"},
	"fatal_error":            {message: "the server could not complete the operation, likely due to a transient issue", transient: true},
	"internal_error":         {message: "the server encountered an unexpected internal error", transient: true},
	"invalid_arg_name":       {message: "the method was passed an argument whose name falls outside the bounds of accepted names"},
	"invalid_array_arg":      {message: "the method was passed an array as an argument"},
	"invalid_auth":           {message: "invalid authentication token"},
	"invalid_charset":        {message: "the method was called via a POST request with an invalid charset"},
	"invalid_cursor":         {message: "value passed for cursor was not valid or is no longer valid"},
	"invalid_form_data":      {message: "the method was called via a POST request with unparseable form data"},
	"invalid_name":           {message: "value passed for name was invalid"},
	"invalid_post_type":      {message: "the method was called via a POST request with an unsupported content type"},
	"is_archived":            {message: "channel has been archived"},
	"message_not_found":      {message: "no message exists with the requested timestamp"},
	codeMigrationInProgress:  {message: "team is being migrated between servers"},
	"missing_post_type":      {message: "the method was called via a POST request without a content type"},
	"missing_scope":          {message: "the token lacks a scope this method requires"},
	"msg_too_long":           {message: "message text is too long"},
	"no_item_specified":      {message: "file, file_comment, or combination of channel and timestamp was not specified"},
	"no_permission":          {message: "the workspace token used in this request does not have the permissions necessary"},
	"no_text":                {message: "no message text provided"},
	"not_allowed_token_type": {message: "the token type used in this request is not allowed"},
	"not_authed":             {message: "no authentication token provided"},
	"not_in_channel":         {message: "the bot is not a member of the channel"},
	"org_login_required":     {message: "the workspace is undergoing an enterprise migration"},
	"rate_limited":           {message: "application has posted too many messages, read the rate limits documentation", transient: true},
	"ratelimited":            {message: "the request has been rate limited", transient: true},
	"request_timeout":        {message: "the method was called via a POST request, but the POST data was either missing or truncated", transient: true},
	"restricted_action":      {message: "a workspace preference prevents the authenticated user from performing this action"},
	"service_unavailable":    {message: "the service is temporarily unavailable", transient: true},
	"team_added_to_org":      {message: "the workspace associated with the request is being migrated to an enterprise org"},
	"token_revoked":          {message: "authentication token is for a deleted user or workspace or the app has been removed"},
	"too_many_emoji":         {message: "the user has reached the limit of distinct emoji on this item"},
	"too_many_reactions":     {message: "the user has reached the limit of reactions on this item"},
	"user_not_found":         {message: "value passed for user was invalid"},
}

var errorCodeSeparator = regexp.MustCompile(`,\s*`)

// newResponseError maps the error field of a failed response onto a typed
// error. Several comma separated codes report the first one.
func newResponseError(command string, resp Response) *domainerrors.ResponseError {
	raw := resp.String("error")
	code := raw
	if codes := errorCodeSeparator.Split(raw, -1); len(codes) > 0 && codes[0] != "" {
		code = codes[0]
	}
	if code == "" {
		code = "unknown_error"
	}

	info, ok := responseCodes[code]
	if !ok {
		info = responseCode{message: "unspecified error"}
	}
	return &domainerrors.ResponseError{
		Command:   command,
		Code:      code,
		Message:   info.message,
		Transient: info.transient,
		Response:  resp,
		Err:       slack.SlackErrorResponse{Err: raw, ResponseMetadata: slack.ResponseMetadata{Messages: resp.Warnings()}},
	}
}
