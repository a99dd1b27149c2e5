package main

import (
	"fmt"
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/canonical/go-efuse"
)

type pufPlan struct {
	ProgramHelperData bool   `yaml:"program-helper-data"`
	SynData           string `yaml:"syn-data"`
	Chash             string `yaml:"chash"`
	Aux               string `yaml:"aux"`
	RoSwap            string `yaml:"ro-swap"`
	SecCtrlBits       string `yaml:"security-control"`
}

// plan is a YAML provisioning plan: the fuse fields to program in one
// run. Fields left out are not touched. Multi word values are big
// endian hex strings and single rows are hex words.
type plan struct {
	AesKey      string            `yaml:"aes-key"`
	UserKey0    string            `yaml:"user-key-0"`
	UserKey1    string            `yaml:"user-key-1"`
	DmeUserKeys map[uint32]string `yaml:"dme-user-keys"`
	Uds         string            `yaml:"uds"`

	PpkHashes map[uint32]string `yaml:"ppk-hashes"`
	Ivs       map[string]string `yaml:"ivs"`

	RevokeIDs        string   `yaml:"revoke-ids"`
	OffChipRevokeIDs string   `yaml:"off-chip-revoke-ids"`
	DmeRevoke        []uint32 `yaml:"dme-revoke"`

	GlitchConfig    string `yaml:"glitch-config"`
	MiscControl     string `yaml:"misc-control"`
	SecurityMisc1   string `yaml:"security-misc-1"`
	BootEnvControl  string `yaml:"boot-env-control"`
	BootModeDisable string `yaml:"boot-mode-disable"`
	DmeMode         string `yaml:"dme-mode"`

	FipsMode    *uint32 `yaml:"fips-mode"`
	FipsVersion *uint32 `yaml:"fips-version"`

	Puf *pufPlan `yaml:"puf"`

	DisablePlmUpdate bool `yaml:"disable-plm-update"`
	DecOnly          bool `yaml:"dec-only"`

	SecurityControl string `yaml:"security-control"`

	// envDisable comes from the apply command rather than the plan
	// file, so that skipping the environmental checks stays a
	// deliberate operator decision.
	envDisable bool
}

func readPlan(path string) (*plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("cannot read plan: %w", err)
	}
	var p plan
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, xerrors.Errorf("cannot parse plan: %w", err)
	}
	return &p, nil
}

func (p *plan) applyKeys(dev *efuse.Device) error {
	for _, k := range []struct {
		value   string
		keyType efuse.KeyType
	}{
		{p.AesKey, efuse.KeyTypeAes},
		{p.UserKey0, efuse.KeyTypeUser0},
		{p.UserKey1, efuse.KeyTypeUser1},
	} {
		if k.value == "" {
			continue
		}
		words, err := parseHexWords(k.value, len(efuse.AesKey{}))
		if err != nil {
			return xerrors.Errorf("cannot parse %v: %w", k.keyType, err)
		}
		var key efuse.AesKey
		copy(key[:], words)
		if err := dev.WriteAesKey(k.keyType, &key); err != nil {
			return err
		}
		fmt.Printf("programmed %v, CRC %#010x\n", k.keyType, efuse.AesKeyCrc(&key))
	}

	for slot := range p.DmeUserKeys {
		if slot > 3 {
			return xerrors.Errorf("cannot program unknown DME user key slot %d", slot)
		}
	}
	for slot := uint32(0); slot <= 3; slot++ {
		value, ok := p.DmeUserKeys[slot]
		if !ok {
			continue
		}
		words, err := parseHexWords(value, len(efuse.DmeKey{}))
		if err != nil {
			return xerrors.Errorf("cannot parse DME user key %d: %w", slot, err)
		}
		var key efuse.DmeKey
		copy(key[:], words)
		keyType := efuse.DmeKeyType(slot)
		if err := dev.WriteDmeUserKey(keyType, &key); err != nil {
			return err
		}
		fmt.Printf("programmed %v\n", keyType)
	}

	if p.Uds != "" {
		words, err := parseHexWords(p.Uds, len(efuse.Uds{}))
		if err != nil {
			return xerrors.Errorf("cannot parse UDS: %w", err)
		}
		var uds efuse.Uds
		copy(uds[:], words)
		if err := dev.WriteUds(p.envDisable, &uds); err != nil {
			return err
		}
		fmt.Printf("programmed UDS, CRC %#010x\n", efuse.UdsCrc(&uds))
	}
	return nil
}

func (p *plan) applyPpksAndIvs(dev *efuse.Device) error {
	for slot := range p.PpkHashes {
		if slot > 2 {
			return xerrors.Errorf("cannot program unknown PPK slot %d", slot)
		}
	}
	for slot := uint32(0); slot <= 2; slot++ {
		value, ok := p.PpkHashes[slot]
		if !ok {
			continue
		}
		words, err := parseHexWords(value, len(efuse.PpkHash{}))
		if err != nil {
			return xerrors.Errorf("cannot parse PPK hash %d: %w", slot, err)
		}
		var hash efuse.PpkHash
		copy(hash[:], words)
		ppkType := efuse.PpkType(slot)
		if err := dev.WritePpkHash(ppkType, &hash); err != nil {
			return err
		}
		fmt.Printf("programmed %v\n", ppkType)
	}

	for name := range p.Ivs {
		if _, err := parseIvType(name); err != nil {
			return xerrors.Errorf("cannot parse plan: %w", err)
		}
	}
	for _, name := range []string{"meta-header", "black", "plm", "data-partition"} {
		value, ok := p.Ivs[name]
		if !ok {
			continue
		}
		words, err := parseHexWords(value, len(efuse.Iv{}))
		if err != nil {
			return xerrors.Errorf("cannot parse %s IV: %w", name, err)
		}
		var iv efuse.Iv
		copy(iv[:], words)
		ivType, _ := parseIvType(name)
		if err := dev.WriteIv(ivType, &iv); err != nil {
			return err
		}
		fmt.Printf("programmed %v\n", ivType)
	}
	return nil
}

func (p *plan) applyRevocations(dev *efuse.Device) error {
	if p.RevokeIDs != "" {
		var ids idRange
		if err := ids.UnmarshalFlag(p.RevokeIDs); err != nil {
			return xerrors.Errorf("cannot parse revocation IDs: %w", err)
		}
		for _, id := range ids {
			if err := dev.WriteRevocationID(p.envDisable, id); err != nil {
				return err
			}
			fmt.Printf("revoked ID %d\n", id)
		}
	}

	if p.OffChipRevokeIDs != "" {
		var ids idRange
		if err := ids.UnmarshalFlag(p.OffChipRevokeIDs); err != nil {
			return xerrors.Errorf("cannot parse off chip revocation IDs: %w", err)
		}
		for _, id := range ids {
			if err := dev.WriteOffChipRevokeID(p.envDisable, id); err != nil {
				return err
			}
			fmt.Printf("revoked off chip ID %d\n", id)
		}
	}

	for _, slot := range p.DmeRevoke {
		revoke := efuse.DmeRevoke(slot)
		if err := dev.WriteDmeRevoke(p.envDisable, revoke); err != nil {
			return err
		}
		fmt.Printf("programmed %v\n", revoke)
	}
	return nil
}

func (p *plan) applyControlRows(dev *efuse.Device) error {
	for _, w := range []struct {
		value string
		name  string
		write func(bool, uint32) error
	}{
		{p.GlitchConfig, "glitch config", dev.WriteGlitchConfigBits},
		{p.MiscControl, "misc control", dev.WriteMiscCtrlBits},
		{p.SecurityMisc1, "security misc 1", dev.WriteMisc1Bits},
		{p.BootEnvControl, "boot env control", dev.WriteBootEnvCtrlBits},
		{p.BootModeDisable, "boot mode disable", dev.WriteBootModeDisable},
		{p.DmeMode, "DME mode", dev.WriteDmeMode},
	} {
		if w.value == "" {
			continue
		}
		bits, err := parseHexWord(w.value)
		if err != nil {
			return xerrors.Errorf("cannot parse %s: %w", w.name, err)
		}
		if err := w.write(p.envDisable, bits); err != nil {
			return err
		}
		fmt.Printf("programmed %s %#x\n", w.name, bits)
	}

	if p.FipsMode != nil || p.FipsVersion != nil {
		var mode, version uint32
		if p.FipsMode != nil {
			mode = *p.FipsMode
		}
		if p.FipsVersion != nil {
			version = *p.FipsVersion
		}
		if err := dev.WriteFipsInfo(p.envDisable, mode, version); err != nil {
			return err
		}
		fmt.Printf("programmed FIPS info mode %#x version %d\n", mode, version)
	}
	return nil
}

func (p *plan) applyPuf(dev *efuse.Device) error {
	if p.Puf == nil {
		return nil
	}

	hd := efuse.PufHelperData{
		ProgramHelperData: p.Puf.ProgramHelperData,
		EnvMonitorDisable: p.envDisable,
	}
	if p.Puf.SynData != "" {
		words, err := parseHexWords(p.Puf.SynData, efuse.PufSynDataWords)
		if err != nil {
			return xerrors.Errorf("cannot parse PUF syndrome data: %w", err)
		}
		copy(hd.SynData[:], words)
	}
	for _, w := range []struct {
		value string
		name  string
		dest  *uint32
	}{
		{p.Puf.Chash, "PUF chash", &hd.Chash},
		{p.Puf.Aux, "PUF aux", &hd.Aux},
		{p.Puf.RoSwap, "PUF RO swap", &hd.RoSwap},
		{p.Puf.SecCtrlBits, "PUF security control bits", &hd.SecCtrlBits},
	} {
		if w.value == "" {
			continue
		}
		bits, err := parseHexWord(w.value)
		if err != nil {
			return xerrors.Errorf("cannot parse %s: %w", w.name, err)
		}
		*w.dest = bits
	}

	if err := dev.WritePuf(&hd); err != nil {
		return err
	}
	fmt.Println("programmed PUF helper data")
	return nil
}

func (p *plan) apply(dev *efuse.Device, envDisable bool) error {
	p.envDisable = envDisable

	if err := p.applyKeys(dev); err != nil {
		return err
	}
	if err := p.applyPpksAndIvs(dev); err != nil {
		return err
	}
	if err := p.applyRevocations(dev); err != nil {
		return err
	}
	if err := p.applyControlRows(dev); err != nil {
		return err
	}
	if err := p.applyPuf(dev); err != nil {
		return err
	}

	if p.DisablePlmUpdate {
		if err := dev.WriteDisableInplacePlmUpdate(p.envDisable); err != nil {
			return err
		}
		fmt.Println("disabled in place PLM update")
	}

	if p.DecOnly {
		// The decrypt only preconditions trust the cache, which has
		// not seen the IV writes above.
		if err := dev.CacheReloadAndProtect(); err != nil {
			return err
		}
		if err := dev.WriteDecOnly(p.envDisable); err != nil {
			return err
		}
		fmt.Println("programmed decrypt only")
	}

	// Last: this row can write lock fields programmed above.
	if p.SecurityControl != "" {
		bits, err := parseHexWord(p.SecurityControl)
		if err != nil {
			return xerrors.Errorf("cannot parse security control: %w", err)
		}
		if err := dev.WriteSecCtrlBits(p.envDisable, bits); err != nil {
			return err
		}
		fmt.Printf("programmed security control %#x\n", bits)
	}
	return nil
}
