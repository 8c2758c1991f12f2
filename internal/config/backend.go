package config

// ConfigBackend is the platform-native store behind `crisp config`.
// macOS keeps values in UserDefaults through the `defaults` CLI; other
// platforms use a JSON file under the XDG config directory.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
