package stream

// Settings is a bitmask of the stream parameters a transport has been given.
type Settings uint8

const (
	SettingAddress Settings = 1 << iota
	SettingPort
	SettingHeight
	SettingWidth
	SettingEncoding

	// SettingsAll is the mask required before a socket may be opened.
	SettingsAll = SettingAddress | SettingPort | SettingHeight | SettingWidth | SettingEncoding
)

// Port records the endpoint state of one transport. It is owned by a single
// payloader or depayloader and never shared.
type Port struct {
	Hostname string
	Port     uint16
	Open     bool
	settings Settings
}

// Configure copies the endpoint fields from info and records which settings
// are now known.
func (p *Port) Configure(info Info) {
	p.Hostname = info.Hostname
	p.Port = info.Port
	p.settings = 0
	if info.Hostname != "" {
		p.settings |= SettingAddress
	}
	if info.Port != 0 {
		p.settings |= SettingPort
	}
	if info.Height != 0 {
		p.settings |= SettingHeight
	}
	if info.Width != 0 {
		p.settings |= SettingWidth
	}
	if _, err := info.Encoding.BytesPerPixel(); err == nil {
		p.settings |= SettingEncoding
	}
}

// Settings returns the mask of known settings.
func (p *Port) Settings() Settings {
	return p.settings
}

// SettingsValid reports whether every setting needed to open the socket is known.
func (p *Port) SettingsValid() bool {
	return p.settings&SettingsAll == SettingsAll
}
