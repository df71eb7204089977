package main

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/bridge"
	"github.com/wippyai/gdext/examples/widget"
	"github.com/wippyai/gdext/host/hosttest"
)

type paramInfo struct {
	name       string
	typ        abi.VariantType
	hasDefault bool
}

type methodInfo struct {
	class     string
	name      string
	params    []paramInfo
	result    abi.VariantType
	hasResult bool
	static    bool
}

// session is an extension library loaded into a simulated host.
type session struct {
	host    *hosttest.Host
	rt      *bridge.Runtime
	init    abi.Initialization
	objects map[string]abi.ObjectPtr
	seen    int
}

// openSession loads the widget library. A non-empty configPath overrides
// the library's own settings; a nil logger keeps the configured one.
func openSession(configPath string, logger *zap.Logger) (*session, error) {
	s := &session{host: hosttest.New(), objects: make(map[string]abi.ObjectPtr)}
	rt, err := bridge.Initialize(s.host.GetProcAddress, s.host.Library(), &s.init, func(c *bridge.Configuration) error {
		if err := widget.Configure(c); err != nil {
			return err
		}
		if configPath != "" {
			if err := c.LoadFile(configPath); err != nil {
				return err
			}
		}
		if logger != nil {
			c.SetLogger(logger)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.rt = rt
	s.host.Initialize(&s.init)
	return s, nil
}

func (s *session) close() {
	for _, obj := range s.objects {
		s.host.Destroy(obj)
	}
	s.host.Deinitialize(&s.init)
}

// methods lists the bound methods of every registered class in binding
// order.
func (s *session) methods() []methodInfo {
	var out []methodInfo
	classes := s.host.Classes()
	slices.Sort(classes)
	for _, name := range classes {
		c, ok := s.host.Class(name)
		if !ok {
			continue
		}
		for _, mname := range c.MethodOrder {
			m := c.Methods[mname]
			info := methodInfo{
				class:  name,
				name:   mname,
				static: m.Info.Flags&abi.MethodFlagStatic != 0,
			}
			firstDefault := len(m.Args) - len(m.Defaults)
			for i, a := range m.Args {
				info.params = append(info.params, paramInfo{name: a.Name, typ: a.Type, hasDefault: i >= firstDefault})
			}
			if m.Return != nil {
				info.result, info.hasResult = m.Return.Type, true
			}
			out = append(out, info)
		}
	}
	return out
}

func (s *session) findMethod(class, name string) (methodInfo, bool) {
	for _, m := range s.methods() {
		if m.class == class && m.name == name {
			return m, true
		}
	}
	return methodInfo{}, false
}

func (s *session) object(class string) (abi.ObjectPtr, error) {
	if obj, ok := s.objects[class]; ok {
		return obj, nil
	}
	obj, err := s.host.Instantiate(class)
	if err != nil {
		return 0, err
	}
	s.objects[class] = obj
	return obj, nil
}

// call converts args, invokes m and formats the result. Trailing empty
// arguments of parameters with defaults are left to the defaults.
func (s *session) call(m methodInfo, args []string) (string, error) {
	if len(args) > len(m.params) {
		return "", fmt.Errorf("%s takes %d arguments, got %d", m.name, len(m.params), len(args))
	}
	for len(args) > 0 && args[len(args)-1] == "" && m.params[len(args)-1].hasDefault {
		args = args[:len(args)-1]
	}

	native := make([]abi.Variant, 0, len(args))
	defer func() {
		for i := range native {
			s.host.Release(&native[i])
		}
	}()
	for i, a := range args {
		v, err := s.convertArg(a, m.params[i].typ)
		if err != nil {
			return "", fmt.Errorf("argument %s: %w", m.params[i].name, err)
		}
		native = append(native, v)
	}

	var (
		ret  abi.Variant
		cerr abi.CallError
	)
	if m.static {
		ret, cerr = s.host.CallStatic(m.class, m.name, native...)
	} else {
		obj, err := s.object(m.class)
		if err != nil {
			return "", err
		}
		ret, cerr = s.host.Call(obj, m.name, native...)
	}
	defer s.host.Release(&ret)

	if errs := s.hostErrors(); cerr.Error != abi.CallOK {
		msg := fmt.Sprintf("%s.%s: %s", m.class, m.name, cerr.Error)
		if len(errs) > 0 {
			msg += ": " + strings.Join(errs, "; ")
		}
		return "", errors.New(msg)
	}
	return s.format(&ret), nil
}

// hostErrors returns the errors the host printed since the last call.
func (s *session) hostErrors() []string {
	errs := s.host.Errors()
	if s.seen >= len(errs) {
		return nil
	}
	out := errs[s.seen:]
	s.seen = len(errs)
	return out
}

func (s *session) convertArg(value string, t abi.VariantType) (abi.Variant, error) {
	var v abi.Variant
	switch t {
	case abi.TypeBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return v, err
		}
		v.SetBool(b)
	case abi.TypeInt:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return v, err
		}
		v.SetInt(i)
	case abi.TypeFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return v, err
		}
		v.SetFloat(f)
	case abi.TypeString:
		v = s.host.String(value)
	case abi.TypeStringName:
		v = s.host.StringName(value)
	default:
		return v, fmt.Errorf("%s arguments are not supported", t)
	}
	return v, nil
}

func (s *session) format(v *abi.Variant) string {
	switch v.Type {
	case abi.TypeNil:
		return "null"
	case abi.TypeBool:
		return strconv.FormatBool(v.Bool())
	case abi.TypeInt:
		return strconv.FormatInt(v.Int(), 10)
	case abi.TypeFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case abi.TypeString, abi.TypeStringName, abi.TypeNodePath:
		return strconv.Quote(s.host.Text(v))
	default:
		return "<" + v.Type.String() + ">"
	}
}

func typeName(t abi.VariantType) string {
	if t == abi.TypeNil {
		return "Variant"
	}
	return t.String()
}
