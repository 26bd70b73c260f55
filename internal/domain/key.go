package domain

type Method string

const MethodPix Method = "pix"

func (m Method) RequiresKey() bool {
	return m == MethodPix
}

func (m Method) Valid() bool {
	return m == MethodPix
}

type KeyType string

const (
	KeyEmail  KeyType = "email"
	KeyCPF    KeyType = "cpf"
	KeyCNPJ   KeyType = "cnpj"
	KeyPhone  KeyType = "phone"
	KeyRandom KeyType = "random"
)

var KeyTypes = [...]KeyType{KeyEmail, KeyCPF, KeyCNPJ, KeyPhone, KeyRandom}

func (t KeyType) Valid() bool {
	for _, kt := range KeyTypes {
		if kt == t {
			return true
		}
	}
	return false
}

// CanDeliver reports whether a key of this type is also a message delivery address.
func (t KeyType) CanDeliver() bool {
	return t == KeyEmail
}

type KeyDescriptor struct {
	Type KeyType
	Key  string
}
