package convert

import (
	"reflect"

	"github.com/godbus/dbus/v5"
)

var (
	boolSignature   = dbus.SignatureOfType(reflect.TypeOf(false))
	byteSignature   = dbus.SignatureOfType(reflect.TypeOf(byte(0)))
	int32Signature  = dbus.SignatureOfType(reflect.TypeOf(int32(0)))
	stringSignature = dbus.SignatureOfType(reflect.TypeOf(""))
	uint32Signature = dbus.SignatureOfType(reflect.TypeOf(uint32(0)))
)

func FromBool(input bool) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, boolSignature)
}

func FromByte(input byte) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, byteSignature)
}

func FromInt32(input int32) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, int32Signature)
}

func FromString(input string) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, stringSignature)
}

func FromUint32(input uint32) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, uint32Signature)
}

// ToString extracts a string from v, reporting whether it held one.
func ToString(v dbus.Variant) (string, bool) {
	s, ok := v.Value().(string)
	return s, ok
}
