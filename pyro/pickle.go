package pyro

import (
	"fmt"
	"net"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pyrolite-go/pickle"
)

// Exception classes of Pyro4.errors. Servers send them pickled in replies
// flagged with FlagException.
var errorClasses = []string{
	"PyroError",
	"CommunicationError",
	"ConnectionClosedError",
	"TimeoutError",
	"ProtocolError",
	"MessageTooLargeError",
	"NamingError",
	"DaemonError",
	"SecurityError",
	"SerializeError",
}

// RegisterPickle registers constructors for the Pyro4 classes found in
// pickled payloads: the Pyro4.errors exceptions, Pyro4.core.URI and
// Pyro4.core.Proxy.
func RegisterPickle(r *pickle.Registry) {
	for _, name := range errorClasses {
		r.Register("Pyro4.errors", name, pickle.ExceptionConstructor{Module: "Pyro4.errors", Name: name})
	}
	r.Register("Pyro4.core", "URI", pickle.ConstructorFunc(constructURI))
	r.Register("Pyro4.core", "Proxy", pickle.ConstructorFunc(constructProxy))
}

// RegisterPicklers registers encoders for *URI and *Proxy.
//
// They are written as calls URI("PYRO:...") and Proxy(uri), which Pyro4
// accepts as constructor arguments.
func RegisterPicklers(ps *pickle.Picklers) {
	ps.Register(reflect.TypeOf((*URI)(nil)), pickle.PicklerFunc(func(e *pickle.Encoder, v any) error {
		return e.SaveReduce("Pyro4.core", "URI", v.(*URI).String())
	}))
	ps.Register(reflect.TypeOf((*Proxy)(nil)), pickle.PicklerFunc(func(e *pickle.Encoder, v any) error {
		p := v.(*Proxy)
		if p.URI == nil {
			return fmt.Errorf("pyro: proxy without uri: %w", ErrInvalidURI)
		}
		return e.SaveReduce("Pyro4.core", "Proxy", p.URI)
	}))
}

// URI is a Pyro object location, e.g. PYRO:obj@localhost:9090 or
// PYRO:obj@./u:/tmp/socket for a unix domain socket.
type URI struct {
	Protocol string
	Object   string
	SockName string
	Host     string
	Port     int
}

// ParseURI parses Pyro URI string s.
func ParseURI(s string) (*URI, error) {
	proto, rest, ok := strings.Cut(s, ":")
	if !ok || !strings.HasPrefix(proto, "PYRO") || strings.ToUpper(proto) != proto {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURI, s)
	}
	u := &URI{Protocol: proto}
	object, loc, hasLoc := strings.Cut(rest, "@")
	if object == "" || strings.ContainsAny(object, " \t\n") {
		return nil, fmt.Errorf("%w: %q: no object", ErrInvalidURI, s)
	}
	u.Object = object
	if !hasLoc {
		return u, nil
	}

	if sock, ok := strings.CutPrefix(loc, "./u:"); ok {
		u.SockName = sock
		return u, nil
	}
	host, port, err := net.SplitHostPort(loc)
	if err != nil {
		// location without port, e.g. PYRONAME:name@nshost
		u.Host = strings.TrimSuffix(strings.TrimPrefix(loc, "["), "]")
		return u, nil
	}
	u.Host = host
	if u.Port, err = strconv.Atoi(port); err != nil || u.Port < 0 || u.Port > 65535 {
		return nil, fmt.Errorf("%w: %q: bad port", ErrInvalidURI, s)
	}
	return u, nil
}

func (u *URI) String() string {
	s := u.Protocol + ":" + u.Object
	switch {
	case u.SockName != "":
		s += "@./u:" + u.SockName
	case u.Host != "" && u.Port != 0:
		s += "@" + net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
	case strings.Contains(u.Host, ":"):
		s += "@[" + u.Host + "]"
	case u.Host != "":
		s += "@" + u.Host
	}
	return s
}

// SetState restores the state Pyro4 pickles for URI:
// (protocol, object, sockname, host, port).
func (u *URI) SetState(state any) error {
	t, ok := state.(pickle.Tuple)
	if !ok || len(t) != 5 {
		return fmt.Errorf("uri state: expected 5-tuple, got %T", state)
	}
	var err error
	if u.Protocol, err = pickle.AsString(t[0]); err != nil {
		return fmt.Errorf("uri protocol: %w", err)
	}
	if u.Object, err = pickle.AsString(t[1]); err != nil {
		return fmt.Errorf("uri object: %w", err)
	}
	if u.SockName, err = optString(t[2]); err != nil {
		return fmt.Errorf("uri sockname: %w", err)
	}
	if u.Host, err = optString(t[3]); err != nil {
		return fmt.Errorf("uri host: %w", err)
	}
	port := int64(0)
	if _, none := t[4].(pickle.None); !none {
		if port, err = pickle.AsInt64(t[4]); err != nil {
			return fmt.Errorf("uri port: %w", err)
		}
	}
	u.Port = int(port)
	return nil
}

func constructURI(args pickle.Tuple) (any, error) {
	switch len(args) {
	case 0:
		// state follows with BUILD
		return &URI{}, nil
	case 1:
		return uriArg(args[0])
	}
	return nil, fmt.Errorf("uri: expected 0 or 1 args, got %d", len(args))
}

func uriArg(x any) (*URI, error) {
	switch x := x.(type) {
	case *URI:
		u := *x
		return &u, nil
	case string:
		return ParseURI(x)
	}
	return nil, fmt.Errorf("%w: unexpected %T", ErrInvalidURI, x)
}

// Proxy is the pickled form of Pyro4.core.Proxy: where the remote object
// lives and what the proxy knew about it.
type Proxy struct {
	URI        *URI
	Oneway     []string
	Methods    []string
	Attrs      []string
	Timeout    float64
	HMACKey    []byte
	Handshake  any
	MaxRetries int
	Serializer string
}

func (p *Proxy) String() string {
	if p.URI == nil {
		return "<Pyro4.core.Proxy>"
	}
	return "<Pyro4.core.Proxy at " + p.URI.String() + ">"
}

func constructProxy(args pickle.Tuple) (any, error) {
	switch len(args) {
	case 0:
		return &Proxy{}, nil
	case 1:
		u, err := uriArg(args[0])
		if err != nil {
			return nil, err
		}
		return &Proxy{URI: u}, nil
	}
	return nil, fmt.Errorf("proxy: expected 0 or 1 args, got %d", len(args))
}

// SetState restores the state Pyro4 pickles for Proxy:
// (uri, oneway, methods, attrs, timeout, hmac key, handshake, max retries[, serializer]).
func (p *Proxy) SetState(state any) error {
	t, ok := state.(pickle.Tuple)
	if !ok || (len(t) != 8 && len(t) != 9) {
		return fmt.Errorf("proxy state: expected 8 or 9-tuple, got %T (using wrong Pyro version?)", state)
	}

	var err error
	if p.URI, err = uriArg(t[0]); err != nil {
		return err
	}
	if p.Oneway, err = names(t[1]); err != nil {
		return fmt.Errorf("proxy oneway: %w", err)
	}
	if p.Methods, err = names(t[2]); err != nil {
		return fmt.Errorf("proxy methods: %w", err)
	}
	if p.Attrs, err = names(t[3]); err != nil {
		return fmt.Errorf("proxy attrs: %w", err)
	}

	switch v := t[4].(type) {
	case pickle.None:
		p.Timeout = 0
	case float64:
		p.Timeout = v
	case int64:
		p.Timeout = float64(v)
	default:
		return fmt.Errorf("proxy timeout: unexpected %T", v)
	}

	switch v := t[5].(type) {
	case pickle.None:
		p.HMACKey = nil
	case string:
		// py2 str
		p.HMACKey = []byte(v)
	default:
		key, err := pickle.AsBytes(v)
		if err != nil {
			return fmt.Errorf("proxy hmac key: %w", err)
		}
		p.HMACKey = []byte(key)
	}

	p.Handshake = t[6]
	if _, none := t[7].(pickle.None); !none {
		retries, err := pickle.AsInt64(t[7])
		if err != nil {
			return fmt.Errorf("proxy max retries: %w", err)
		}
		p.MaxRetries = int(retries)
	}
	if len(t) == 9 {
		if p.Serializer, err = optString(t[8]); err != nil {
			return fmt.Errorf("proxy serializer: %w", err)
		}
	}
	return nil
}

// names returns sorted strings of a pickled set, tuple or list.
func names(x any) ([]string, error) {
	var items []any
	switch x := x.(type) {
	case pickle.None:
		return nil, nil
	case pickle.Set:
		items = x.Items()
	case pickle.Tuple:
		items = x
	case *pickle.List:
		items = *x
	default:
		return nil, fmt.Errorf("expected collection of names, got %T", x)
	}

	var out []string
	for _, item := range items {
		s, err := pickle.AsString(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func optString(x any) (string, error) {
	if _, none := x.(pickle.None); none {
		return "", nil
	}
	return pickle.AsString(x)
}
