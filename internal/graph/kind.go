package graph

import "strings"

// OpKind classifies what a node computes. The set is closed; tags coming
// from serialized graphs are parsed once into a kind at the boundary.
type OpKind uint8

const (
	OpUnknown OpKind = iota
	OpPlaceholder

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMax
	OpMin

	OpAdds
	OpMuls

	OpSqrt
	OpRsqrt
	OpRec
	OpAbs
	OpExp
	OpLog
	OpRelu

	OpCast

	OpBroadcast

	OpReduceSum
	OpReduceMax
	OpReduceMin
)

type kindInfo struct {
	name  string
	tag   string
	class opClass
}

type opClass uint8

const (
	classNone opClass = iota
	classInput
	classBinary
	classScalar
	classUnary
	classCast
	classBroadcast
	classReduce
)

var kinds = [...]kindInfo{
	OpUnknown:     {"unknown", "", classNone},
	OpPlaceholder: {"placeholder", "placeholder", classInput},
	OpAdd:         {"add", "elewise_binary_add", classBinary},
	OpSub:         {"sub", "elewise_binary_sub", classBinary},
	OpMul:         {"mul", "elewise_binary_mul", classBinary},
	OpDiv:         {"div", "elewise_binary_div", classBinary},
	OpMax:         {"max", "elewise_binary_max", classBinary},
	OpMin:         {"min", "elewise_binary_min", classBinary},
	OpAdds:        {"adds", "elewise_single_VS_add", classScalar},
	OpMuls:        {"muls", "elewise_single_VS_mul", classScalar},
	OpSqrt:        {"sqrt", "elewise_single_sqrt", classUnary},
	OpRsqrt:       {"rsqrt", "elewise_single_rsqrt", classUnary},
	OpRec:         {"rec", "elewise_single_rec", classUnary},
	OpAbs:         {"abs", "elewise_single_abs", classUnary},
	OpExp:         {"exp", "elewise_single_exp", classUnary},
	OpLog:         {"log", "elewise_single_log", classUnary},
	OpRelu:        {"relu", "elewise_single_relu", classUnary},
	OpCast:        {"cast", "elewise_single_cast", classCast},
	OpBroadcast:   {"broadcast", "broadcast_for_tensor", classBroadcast},
	OpReduceSum:   {"reduce_sum", "reduce_sum", classReduce},
	OpReduceMax:   {"reduce_max", "reduce_max", classReduce},
	OpReduceMin:   {"reduce_min", "reduce_min", classReduce},
}

func (k OpKind) info() kindInfo {
	if int(k) < len(kinds) {
		return kinds[k]
	}
	return kinds[OpUnknown]
}

func (k OpKind) String() string { return k.info().name }

// Tag is the canonical tag string for the kind.
func (k OpKind) Tag() string { return k.info().tag }

func (k OpKind) IsPlaceholder() bool { return k.info().class == classInput }
func (k OpKind) IsBroadcast() bool   { return k.info().class == classBroadcast }
func (k OpKind) IsReduce() bool      { return k.info().class == classReduce }
func (k OpKind) IsCast() bool        { return k.info().class == classCast }
func (k OpKind) IsScalar() bool      { return k.info().class == classScalar }

// IsElementwise reports kinds computed independently per element.
func (k OpKind) IsElementwise() bool {
	switch k.info().class {
	case classBinary, classScalar, classUnary, classCast:
		return true
	}
	return false
}

// Arity is the number of producers a node of this kind consumes.
func (k OpKind) Arity() int {
	switch k.info().class {
	case classNone, classInput:
		return 0
	case classBinary:
		return 2
	}
	return 1
}

func (k OpKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// tagAliases maps serialized tags that do not match a canonical tag.
var tagAliases = map[string]struct {
	kind  OpKind
	round RoundMode
}{
	"broadcast":            {OpBroadcast, RoundNone},
	"elewise_single_round": {OpCast, RoundNearest},
	"elewise_single_floor": {OpCast, RoundFloor},
	"elewise_single_ceil":  {OpCast, RoundCeil},
	"elewise_single_trunc": {OpCast, RoundTrunc},
	"reduce_nlst_axis_sum": {OpReduceSum, RoundNone},
	"reduce_last_axis_sum": {OpReduceSum, RoundNone},
}

var tagIndex = func() map[string]OpKind {
	m := make(map[string]OpKind, len(kinds))
	for k := range kinds {
		if kinds[k].tag != "" {
			m[kinds[k].tag] = OpKind(k)
		}
	}
	return m
}()

// ParseTag resolves a serialized tag into a kind. Compound tags
// ("elewise_single_cast|not_auto_cast") use only their first segment.
// Unknown tags yield OpUnknown so the miss surfaces at instruction mapping.
func ParseTag(tag string) (OpKind, RoundMode) {
	head, _, _ := strings.Cut(strings.TrimSpace(tag), "|")
	if k, ok := tagIndex[head]; ok {
		return k, RoundNone
	}
	if a, ok := tagAliases[head]; ok {
		return a.kind, a.round
	}
	return OpUnknown, RoundNone
}
