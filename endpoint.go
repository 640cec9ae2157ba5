package cloudobjects

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-errors"
)

// Operation is a logical remote operation the resolver knows how to target.
type Operation string

const (
	OpInstanceResolve Operation = "instance_resolve"
	OpCall            Operation = "call"
	OpStaticCall      Operation = "static_call"
	OpStateFetch      Operation = "state_fetch"
	OpListInstances   Operation = "list_instances"
	OpSignIn          Operation = "sign_in"
	OpRefresh         Operation = "refresh"
	OpSignOut         Operation = "sign_out"
)

// Region selects the hosted backend region.
type Region string

const (
	RegionEUWest1     Region = "eu-west-1"
	RegionEUWest1Beta Region = "eu-west-1-beta"
)

// DefaultRegion is used when the config leaves the region unset.
const DefaultRegion = RegionEUWest1

// DefaultCulture is the locale attached to every call unless the caller
// supplies its own.
const DefaultCulture = "en-US"

var regionHosts = map[Region]string{
	RegionEUWest1:     "api.cloudobjects.io",
	RegionEUWest1Beta: "api-beta.cloudobjects.io",
}

// EndpointParams are the inputs to one resolution. Every path segment is an
// independent optional piece appended only when present.
type EndpointParams struct {
	ClassID    string
	InstanceID string
	KeyName    string
	KeyValue   string
	Method     string
	PathParams string
	HTTPMethod string
	Query      map[string]string
	Body       any
}

// endpointResolver maps (operation, params) to a concrete request target.
// It is a pure function of the config and its inputs.
type endpointResolver struct {
	projectID string
	region    Region
	override  string
	culture   string
	platform  string
}

func newEndpointResolver(cfg Config) *endpointResolver {
	return &endpointResolver{
		projectID: cfg.ProjectID,
		region:    cfg.Region,
		override:  cfg.URL,
		culture:   cfg.Culture,
		platform:  cfg.Platform,
	}
}

// Resolve builds the full request URL for a logical operation.
func (r *endpointResolver) Resolve(op Operation, p EndpointParams) (*url.URL, error) {
	target := &url.URL{Scheme: "https", Host: r.host()}
	if strings.Contains(r.override, "://") {
		parsed, err := url.Parse(r.override)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid endpoint override")
		}
		target.Scheme = parsed.Scheme
		target.Host = parsed.Host
	}

	path, err := r.path(op, p)
	if err != nil {
		return nil, err
	}
	target.Path = path

	query := url.Values{}
	if _, ok := p.Query["__culture"]; !ok {
		culture := r.culture
		if culture == "" {
			culture = DefaultCulture
		}
		query.Set("__culture", culture)
	}
	if _, ok := p.Query["__platform"]; !ok && r.platform != "" {
		query.Set("__platform", r.platform)
	}
	for key, value := range p.Query {
		query.Set(key, value)
	}

	// GET carries structured payloads inside the query string so the call
	// keeps cacheable idempotent-GET semantics.
	if p.Body != nil && strings.EqualFold(p.HTTPMethod, http.MethodGet) {
		canonical, err := canonicalJSON(p.Body)
		if err != nil {
			return nil, err
		}
		query.Set("data", base64.StdEncoding.EncodeToString(canonical))
		query.Set("__isbase64", "true")
	}

	target.RawQuery = query.Encode()
	return target, nil
}

func (r *endpointResolver) host() string {
	if r.override != "" && !strings.Contains(r.override, "://") {
		return r.override
	}
	region := r.region
	if region == "" {
		region = DefaultRegion
	}
	host, ok := regionHosts[region]
	if !ok {
		host = regionHosts[DefaultRegion]
	}
	return r.projectID + "." + host
}

func (r *endpointResolver) path(op Operation, p EndpointParams) (string, error) {
	switch op {
	case OpInstanceResolve:
		segments := []string{"INSTANCE", p.ClassID}
		if p.KeyName != "" && p.KeyValue != "" {
			segments = append(segments, p.KeyName+"!"+p.KeyValue)
		} else if p.InstanceID != "" {
			segments = append(segments, p.InstanceID)
		}
		return join(segments), nil
	case OpStateFetch:
		return join([]string{"STATE", p.ClassID, p.InstanceID}), nil
	case OpListInstances:
		return join([]string{"LIST", p.ClassID}), nil
	case OpCall, OpStaticCall:
		segments := []string{"CALL", p.ClassID, p.Method}
		if p.InstanceID != "" {
			segments = append(segments, p.InstanceID)
		}
		if p.PathParams != "" {
			segments = append(segments, p.PathParams)
		}
		return join(segments), nil
	case OpSignIn:
		return "/AUTH/authWithCustomToken", nil
	case OpRefresh:
		return "/AUTH/refreshToken", nil
	case OpSignOut:
		return "/AUTH/signOut", nil
	default:
		return "", errors.New("unknown operation", errors.CategoryBadInput).
			WithMetadata(map[string]any{"operation": string(op)})
	}
}

func join(segments []string) string {
	kept := segments[:0]
	for _, segment := range segments {
		if segment != "" {
			kept = append(kept, segment)
		}
	}
	return "/" + strings.Join(kept, "/")
}
