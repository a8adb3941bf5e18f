// Package membrane builds the inner-realm "secure proxy" layer. Rather than
// hand-rolling DynamicObject/get-set trap wiring against sobek's Go-side
// API surface, the membrane is expressed as a small ECMAScript prelude
// that uses the native `Proxy` constructor — the inner realm's own engine
// then enforces the traps, and only the BlockedPropertySet and a couple of
// policy flags cross the Go/JS boundary. This pushes sandboxing logic into
// the guest language itself rather than fighting a host-embedding API.
package membrane

import (
	"encoding/json"
	"fmt"
)

// Policy configures the prelude's wrap() function for one execution.
type Policy struct {
	BlockedProperties []string
	StrictThrow       bool
	MaxDepth          int
}

// preludeTemplate is the ECMAScript source injected into every inner realm
// before user code runs. `%s` holds a JSON-encoded Policy, read back with
// JSON.parse so the Go side never has to marshal JS values by hand.
const preludeTemplate = `
(function(__policyJSON) {
  var __policy = JSON.parse(__policyJSON);
  var __blocked = {};
  for (var __i = 0; __i < __policy.blockedProperties.length; __i++) {
    __blocked[__policy.blockedProperties[__i]] = true;
  }
  var __maxDepth = __policy.maxDepth;
  var __strictThrow = !!__policy.strictThrow;
  var __wrapped = typeof WeakMap !== "undefined" ? new WeakMap() : null;

  function __isWrappable(v) {
    return v !== null && (typeof v === "object" || typeof v === "function");
  }

  function __blockedAccess(name) {
    if (__strictThrow) {
      var e = new Error("security violation: blocked property '" + name + "'");
      e.name = "SecurityError";
      throw e;
    }
    return undefined;
  }

  function wrap(target, depth) {
    if (!__isWrappable(target)) return target;
    depth = depth || 0;
    if (depth >= __maxDepth) return target;
    if (__wrapped && __wrapped.has(target)) return __wrapped.get(target);

    var handler = {
      get: function(t, prop, receiver) {
        if (typeof prop === "string" && __blocked[prop]) {
          return __blockedAccess(prop);
        }
        var v;
        try {
          v = Reflect.get(t, prop, t);
        } catch (e) {
          return undefined;
        }
        return wrap(v, depth + 1);
      },
      set: function(t, prop, value) {
        if (typeof prop === "string" && __blocked[prop]) {
          return __blockedAccess(prop), false;
        }
        t[prop] = value;
        return true;
      },
      has: function(t, prop) {
        if (typeof prop === "string" && __blocked[prop]) return false;
        return prop in t;
      },
      deleteProperty: function(t, prop) {
        if (typeof prop === "string" && __blocked[prop]) return false;
        delete t[prop];
        return true;
      },
      getPrototypeOf: function(t) {
        return null;
      },
      setPrototypeOf: function(t, proto) {
        return false;
      },
      ownKeys: function(t) {
        var keys = Reflect.ownKeys(t);
        return keys.filter(function(k) {
          return typeof k !== "string" || !__blocked[k];
        });
      },
      getOwnPropertyDescriptor: function(t, prop) {
        if (typeof prop === "string" && __blocked[prop]) return undefined;
        var d = Reflect.getOwnPropertyDescriptor(t, prop);
        if (d && "value" in d) d.value = wrap(d.value, depth + 1);
        return d;
      },
      apply: function(t, thisArg, args) {
        return wrap(Reflect.apply(t, thisArg, args), depth + 1);
      },
      construct: function(t, args) {
        return wrap(Reflect.construct(t, args), depth + 1);
      }
    };

    var p = new Proxy(target, handler);
    if (__wrapped) __wrapped.set(target, p);
    return p;
  }

  globalThis.__enclave_wrap = wrap;
})(%s);
`

// Render produces the prelude source for one Policy, ready to run before
// user code in a fresh realm.
func Render(p Policy) (string, error) {
	encoded, err := json.Marshal(struct {
		BlockedProperties []string `json:"blockedProperties"`
		StrictThrow       bool     `json:"strictThrow"`
		MaxDepth          int      `json:"maxDepth"`
	}{
		BlockedProperties: p.BlockedProperties,
		StrictThrow:       p.StrictThrow,
		MaxDepth:          p.MaxDepth,
	})
	if err != nil {
		return "", fmt.Errorf("encode membrane policy: %w", err)
	}
	quoted, err := json.Marshal(string(encoded))
	if err != nil {
		return "", fmt.Errorf("quote membrane policy: %w", err)
	}
	return fmt.Sprintf(preludeTemplate, quoted), nil
}
