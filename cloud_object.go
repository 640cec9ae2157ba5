package cloudobjects

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/goliatone/go-errors"
)

// MethodDefinition is one callable method a cloud object class exposes, as
// reported by instance resolution.
type MethodDefinition struct {
	Method string `json:"method"`
	Tag    string `json:"tag,omitempty"`
	Sync   bool   `json:"sync,omitempty"`
}

// CloudObjectOptions identify the object to resolve: by instance id, by a
// named key, or neither (the server assigns a fresh instance).
type CloudObjectOptions struct {
	ClassID     string
	InstanceID  string
	KeyName     string
	KeyValue    string
	Body        any
	Headers     map[string]string
	Query       map[string]string
	RetryPolicy *RetryPolicy
}

// CallOptions describe one method call on an object or class.
type CallOptions struct {
	Method      string
	Body        any
	Headers     map[string]string
	Query       map[string]string
	HTTPMethod  string
	PathParams  string
	RetryPolicy *RetryPolicy
}

// CloudObject is the live handle for one server-resident object. At most
// one handle exists per (class, instance) per client; repeated resolution
// returns the same handle.
type CloudObject struct {
	ClassID       string
	InstanceID    string
	IsNewInstance bool
	Methods       []MethodDefinition

	resolver *endpointResolver
	caller   *retryableCaller
	realtime *realtimeManager
	policy   RetryPolicy
}

// Call invokes a method on this instance.
func (o *CloudObject) Call(ctx context.Context, opts CallOptions) (*Response, error) {
	if opts.Method == "" {
		return nil, errors.New("call requires a method name", errors.CategoryBadInput)
	}

	target, err := o.resolver.Resolve(OpCall, EndpointParams{
		ClassID:    o.ClassID,
		InstanceID: o.InstanceID,
		Method:     opts.Method,
		PathParams: opts.PathParams,
		HTTPMethod: opts.HTTPMethod,
		Query:      opts.Query,
		Body:       opts.Body,
	})
	if err != nil {
		return nil, err
	}

	spec, err := buildRequestSpec(opts)
	if err != nil {
		return nil, err
	}
	return o.caller.Execute(ctx, target.String(), spec, o.policy.merged(opts.RetryPolicy))
}

// GetState fetches the object's full state document.
func (o *CloudObject) GetState(ctx context.Context) (*Response, error) {
	target, err := o.resolver.Resolve(OpStateFetch, EndpointParams{
		ClassID:    o.ClassID,
		InstanceID: o.InstanceID,
	})
	if err != nil {
		return nil, err
	}
	return o.caller.Execute(ctx, target.String(), RequestSpec{Method: http.MethodGet}, o.policy)
}

// On subscribes to one of the object's realtime state partitions. The
// returned stream closes when the object is released; cancel only detaches
// this subscriber.
func (o *CloudObject) On(ctx context.Context, partition Partition, buffer int) (<-chan map[string]any, func(), error) {
	channel := o.realtime.channel(o.ClassID, o.InstanceID, partition)
	return channel.Subscribe(ctx, buffer)
}

// buildRequestSpec serializes the body for non-GET calls; GET payloads are
// already canonicalized into the query by the resolver.
func buildRequestSpec(opts CallOptions) (RequestSpec, error) {
	method := opts.HTTPMethod
	if method == "" {
		method = http.MethodPost
	}

	spec := RequestSpec{Method: method, Headers: opts.Headers}
	if opts.Body != nil && method != http.MethodGet {
		raw, err := json.Marshal(opts.Body)
		if err != nil {
			return RequestSpec{}, errors.Wrap(err, errors.CategoryBadInput, "call body is not serializable")
		}
		spec.Body = raw
		if spec.Headers == nil {
			spec.Headers = map[string]string{}
		}
		if _, ok := spec.Headers["Content-Type"]; !ok {
			spec.Headers["Content-Type"] = "application/json"
		}
	}
	return spec, nil
}
