package model

import (
	"strconv"
	"strings"
)

// Identity is the stringified identity of an entity. It keys the virtual-handle
// registry and the navigator cache.
type Identity string

// Entity is anything that can be addressed by a virtual handle.
type Entity interface {
	Identity() Identity
}

// NodeIdentity returns the identity of a node key.
func NodeIdentity(k NodeKey) Identity {
	return Identity(k.String())
}

// EdgeIdentity returns the identity of an edge id.
func EdgeIdentity(id int64) Identity {
	return Identity("edge:" + strconv.FormatInt(id, 10))
}

// MethodIdentity returns the identity of a method path.
func MethodIdentity(id MethodID) Identity {
	return Identity("method:" + strings.Join(id, "|"))
}

// ParameterIdentity returns the identity of a parameter in a scope.
func ParameterIdentity(scope, name string) Identity {
	return Identity("param:" + scope + "|" + name)
}

// DatabaseIdentity returns the identity of a database.
func DatabaseIdentity(name string) Identity {
	return Identity("db:" + name)
}

// SetupIdentity returns the identity of a calculation setup.
func SetupIdentity(name string) Identity {
	return Identity("cs:" + name)
}

// Ref wraps a bare identity so it can be passed where an Entity is expected,
// e.g. when only the key of a deleted record is known.
type Ref Identity

// Identity implements Entity.
func (r Ref) Identity() Identity { return Identity(r) }
