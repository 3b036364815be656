package session

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
	"go2tv.app/screenshot/internal/apis"
	"go2tv.app/screenshot/internal/convert"
)

const (
	interfaceName = "org.freedesktop.portal.Session"
	closeCallName = interfaceName + ".Close"

	tokenPrefix = "screenshot"
)

func Close(path dbus.ObjectPath) error {
	return apis.CallOnObject(path, closeCallName)
}

// NewToken returns a random handle token usable as a D-Bus object path element.
func NewToken() string {
	str := strings.Builder{}
	str.WriteString(tokenPrefix)
	a, _ := rand.Int(rand.Reader, big.NewInt(1<<16))
	str.WriteString(strconv.FormatUint(a.Uint64(), 16))
	return str.String()
}

func GenerateToken() dbus.Variant {
	return convert.FromString(NewToken())
}
