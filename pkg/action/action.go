// Package action normalizes AWS IAM action names and CloudTrail event names
// into a single comparable representation, and carries the handful of rename
// tables the two naming schemes disagree on.
package action

import "strings"

// Action is a normalized "service:event" pair, always lowercase. It may carry
// either IAM or CloudTrail event naming; IAMToCloudTrail and CloudTrailToIAM
// convert between the two.
type Action string

// Service returns the portion of the action before the colon, or "" if the
// action isn't in "service:event" form.
func (a Action) Service() string {
	parts := strings.SplitN(string(a), ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}

// Event returns the portion of the action after the colon, or "" if the
// action isn't in "service:event" form.
func (a Action) Event() string {
	parts := strings.SplitN(string(a), ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// serviceRenames translates a CloudTrail eventSource prefix to its IAM
// service name. Pulled from http://bit.ly/2txbx1L; a couple of the names
// there look reversed from what IAM actually uses.
var serviceRenames = map[string]string{
	"monitoring": "cloudwatch",
	"email":      "ses",
}

// eventRenamesIAMToCloudTrail translates an IAM action name to the
// CloudTrail event name actually recorded in logs. S3 is the one service
// where the IAM action names differ from the logged SOAP API names; see
// https://docs.aws.amazon.com/AmazonS3/latest/dev/cloudtrail-logging.html
var eventRenamesIAMToCloudTrail = map[Action]Action{
	"s3:listallmybuckets":           "s3:listbuckets",
	"s3:getbucketaccesscontrolpolicy": "s3:getbucketacl",
	"s3:setbucketaccesscontrolpolicy": "s3:putbucketacl",
	"s3:getbucketloggingstatus":     "s3:getbucketlogging",
	"s3:setbucketloggingstatus":     "s3:putbucketlogging",
}

// eventRenamesCloudTrailToIAM is the inverse of eventRenamesIAMToCloudTrail,
// built once at init time.
var eventRenamesCloudTrailToIAM = invert(eventRenamesIAMToCloudTrail)

func invert(m map[Action]Action) map[Action]Action {
	out := make(map[Action]Action, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// NoIAM lists actions seen in CloudTrail for which no IAM policy can ever
// grant or deny them; these are implicitly allowed regardless of IAM state,
// so the diff presenter never flags them as ungranted.
var NoIAM = map[Action]bool{
	"sts:getcalleridentity": true,
	"sts:getsessiontoken":   true,
	"signin:consolelogin":   true,
	"signin:checkmfa":       true,
	"signin:exitrole":       true,
	"signin:renewrole":      true,
	"signin:switchrole":     true,
}

// Normalize builds the canonical Action for a CloudTrail (eventSource,
// eventName) pair. eventSource is expected in "service.amazonaws.com" form
// or as a bare service name; both are accepted.
//
// Event names carrying an API version suffix (e.g. CreateDistribution2015_07_27)
// are truncated at the first literal "20" substring. This is a known
// CloudTracker quirk, not a year-anchored parse: it predates this
// implementation and downstream behavior depends on it, so it is preserved
// as-is rather than "fixed".
func Normalize(service, eventName string) Action {
	service = strings.ToLower(service)
	service = strings.TrimSuffix(service, ".amazonaws.com")
	eventName = strings.ToLower(eventName)

	if idx := strings.Index(eventName, "20"); idx >= 0 {
		eventName = eventName[:idx]
	}

	if renamed, ok := serviceRenames[service]; ok {
		service = renamed
	}

	return Action(service + ":" + eventName)
}

// IAMToCloudTrail translates an action as it appears in an IAM policy to the
// name CloudTrail actually logs it under.
func IAMToCloudTrail(a Action) Action {
	if renamed, ok := eventRenamesIAMToCloudTrail[a]; ok {
		return renamed
	}
	return a
}

// CloudTrailToIAM translates an action as recorded by CloudTrail back to its
// IAM policy name.
func CloudTrailToIAM(a Action) Action {
	if renamed, ok := eventRenamesCloudTrailToIAM[a]; ok {
		return renamed
	}
	return a
}
