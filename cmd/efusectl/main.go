package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bsiegert/ranges"
	"github.com/jessevdk/go-flags"
	"golang.org/x/xerrors"

	"github.com/canonical/go-efuse"
	"github.com/canonical/go-efuse/mmio"
	"github.com/canonical/go-efuse/simulator"
)

type hexUint64 uint64

func (h hexUint64) MarshalFlag() (string, error) {
	return fmt.Sprintf("%#x", uint64(h)), nil
}

func (h *hexUint64) UnmarshalFlag(value string) error {
	v, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return err
	}
	*h = hexUint64(v)
	return nil
}

type idRange []uint32

func (r idRange) MarshalFlag() (string, error) {
	var s []string
	for _, id := range r {
		s = append(s, strconv.FormatUint(uint64(id), 10))
	}
	return strings.Join(s, ","), nil
}

func (r *idRange) UnmarshalFlag(value string) error {
	ids, err := ranges.Parse(value)
	if err != nil {
		return err
	}
	for _, id := range ids {
		*r = append(*r, uint32(id))
	}
	return nil
}

type options struct {
	Path   string    `long:"path" default:"/dev/mem" description:"Device to map the controller registers from"`
	Base   hexUint64 `long:"base" description:"Physical base address of the eFuse controller window"`
	DryRun bool      `long:"dry-run" description:"Run against a blank simulated fuse array instead of the device"`
}

var opts options

// target is the device a command operates on: either the mapped
// controller window or, with --dry-run, a simulated blank array.
type target struct {
	dev   *efuse.Device
	sim   *simulator.Controller
	close func() error
}

func openTarget() (*target, error) {
	if opts.DryRun {
		sim := simulator.NewController()
		return &target{
			dev:   efuse.NewDevice(sim),
			sim:   sim,
			close: func() error { return nil },
		}, nil
	}

	if opts.Base == 0 {
		return nil, errors.New("no controller base address given (--base)")
	}
	regs, err := mmio.Open(opts.Path, uint64(opts.Base), efuse.CacheEndOffset)
	if err != nil {
		return nil, err
	}
	return &target{dev: efuse.NewDevice(regs), close: regs.Close}, nil
}

func (t *target) finish() error {
	if t.sim != nil && t.sim.ProgramPulses > 0 {
		fmt.Printf("dry run: %d fuse program pulses\n", t.sim.ProgramPulses)
	}
	return t.close()
}

func parseHexWord(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, xerrors.Errorf("cannot parse %q as a fuse word: %w", s, err)
	}
	return uint32(v), nil
}

// parseHexWords converts a big endian hex string into the least
// significant word first layout the fuse fields use.
func parseHexWords(s string, count int) ([]uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) == 0 || len(s) > 8*count {
		return nil, xerrors.Errorf("cannot parse hex value: expected up to %d hex digits", 8*count)
	}
	s = strings.Repeat("0", 8*count-len(s)) + s

	words := make([]uint32, count)
	for i := range words {
		w, err := strconv.ParseUint(s[len(s)-8*(i+1):len(s)-8*i], 16, 32)
		if err != nil {
			return nil, xerrors.Errorf("cannot parse hex value: %w", err)
		}
		words[i] = uint32(w)
	}
	return words, nil
}

func parseKeyType(s string) (efuse.KeyType, error) {
	switch s {
	case "aes":
		return efuse.KeyTypeAes, nil
	case "user0":
		return efuse.KeyTypeUser0, nil
	case "user1":
		return efuse.KeyTypeUser1, nil
	default:
		return 0, xerrors.Errorf("unknown key type %q", s)
	}
}

func parseIvType(s string) (efuse.IvType, error) {
	switch s {
	case "meta-header":
		return efuse.MetaHeaderIv, nil
	case "black":
		return efuse.BlackIv, nil
	case "plm":
		return efuse.PlmIv, nil
	case "data-partition":
		return efuse.DataPartitionIv, nil
	default:
		return 0, xerrors.Errorf("unknown IV type %q", s)
	}
}

type cmdShow struct{}

func (cmd *cmdShow) Execute(args []string) error {
	t, err := openTarget()
	if err != nil {
		return err
	}
	defer t.finish()

	words := []struct {
		name string
		read func() (uint32, error)
	}{
		{"security control", t.dev.ReadSecCtrlBits},
		{"misc control", t.dev.ReadMiscCtrlBits},
		{"security misc 1", t.dev.ReadMisc1Bits},
		{"boot env control", t.dev.ReadBootEnvCtrlBits},
		{"glitch config", t.dev.ReadGlitchConfigBits},
		{"decrypt only", t.dev.ReadDecOnly},
		{"boot mode disable", t.dev.ReadBootModeDisable},
		{"DME mode", t.dev.ReadDmeMode},
	}
	for _, w := range words {
		v, err := w.read()
		if err != nil {
			return err
		}
		fmt.Printf("%-18s %#010x\n", w.name+":", v)
	}

	mode, version, err := t.dev.ReadFipsInfo()
	if err != nil {
		return err
	}
	fmt.Printf("%-18s mode %#x version %d\n", "FIPS info:", mode, version)

	for _, k := range []struct {
		name    string
		keyType efuse.KeyType
	}{
		{"AES key", efuse.KeyTypeAes},
		{"user key 0", efuse.KeyTypeUser0},
		{"user key 1", efuse.KeyTypeUser1},
	} {
		state := "programmed"
		if err := t.dev.CheckAesKeyCrc(k.keyType, efuse.AesCrcZeros); err == nil {
			state = "blank"
		} else if !xerrors.Is(err, efuse.ErrCrcMismatch) {
			return err
		}
		fmt.Printf("%-18s %s\n", k.name+":", state)
	}

	state := "programmed"
	if err := t.dev.CheckUdsCrc(efuse.UdsCrcZeros); err == nil {
		state = "blank"
	} else if !xerrors.Is(err, efuse.ErrCrcMismatch) {
		return err
	}
	fmt.Printf("%-18s %s\n", "UDS:", state)

	for _, ppkType := range []efuse.PpkType{efuse.Ppk0, efuse.Ppk1, efuse.Ppk2} {
		hash, err := t.dev.ReadPpkHash(ppkType)
		if err != nil {
			return err
		}
		fmt.Printf("%-18s %s\n", fmt.Sprintf("%v:", ppkType), formatWords(hash[:]))
	}

	for _, ivType := range []efuse.IvType{efuse.MetaHeaderIv, efuse.BlackIv, efuse.PlmIv, efuse.DataPartitionIv} {
		iv, err := t.dev.ReadIv(ivType)
		if err != nil {
			return err
		}
		fmt.Printf("%-18s %s\n", fmt.Sprintf("%v:", ivType), formatWords(iv[:]))
	}

	revoked, err := collectRevoked(t.dev.IsRevoked)
	if err != nil {
		return err
	}
	fmt.Printf("%-18s %s\n", "revoked IDs:", revoked)

	offChip, err := collectRevoked(t.dev.IsOffChipRevoked)
	if err != nil {
		return err
	}
	fmt.Printf("%-18s %s\n", "off chip revoked:", offChip)

	return nil
}

// formatWords prints a multi word field as one big endian hex string,
// the same form the write commands accept.
func formatWords(words []uint32) string {
	var b strings.Builder
	b.WriteString("0x")
	for i := len(words) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%08x", words[i])
	}
	return b.String()
}

func collectRevoked(isRevoked func(uint32) (bool, error)) (string, error) {
	var ids []string
	for id := uint32(1); id <= efuse.MaxRevocationIDs; id++ {
		revoked, err := isRevoked(id)
		if err != nil {
			return "", err
		}
		if revoked {
			ids = append(ids, strconv.FormatUint(uint64(id), 10))
		}
	}
	if len(ids) == 0 {
		return "none", nil
	}
	return strings.Join(ids, ","), nil
}

type cmdDump struct {
	Offset hexUint64 `long:"offset" description:"Cache offset to start from (defaults to the start of the cache bank)"`
	Count  uint32    `long:"count" default:"8" description:"Number of words to dump"`
}

func (cmd *cmdDump) Execute(args []string) error {
	t, err := openTarget()
	if err != nil {
		return err
	}
	defer t.finish()

	offset := uint32(cmd.Offset)
	if offset == 0 {
		offset = efuse.CacheBaseOffset
	}

	words, err := t.dev.ReadCacheRange(offset, cmd.Count)
	if err != nil {
		return err
	}
	for i, w := range words {
		fmt.Printf("%#06x: %#010x\n", offset+uint32(i)*4, w)
	}
	return nil
}

type cmdReload struct{}

func (cmd *cmdReload) Execute(args []string) error {
	t, err := openTarget()
	if err != nil {
		return err
	}
	defer t.finish()

	if err := t.dev.CacheReloadAndProtect(); err != nil {
		return err
	}
	fmt.Println("fuse cache reloaded")
	return nil
}

type cmdWriteKey struct {
	Type string `long:"type" choice:"aes" choice:"user0" choice:"user1" required:"true" description:"Which key eFuse to program"`

	Positional struct {
		Key string `positional-arg-name:"key-hex" required:"true"`
	} `positional-args:"true"`
}

func (cmd *cmdWriteKey) Execute(args []string) error {
	keyType, err := parseKeyType(cmd.Type)
	if err != nil {
		return err
	}
	words, err := parseHexWords(cmd.Positional.Key, len(efuse.AesKey{}))
	if err != nil {
		return err
	}
	var key efuse.AesKey
	copy(key[:], words)

	t, err := openTarget()
	if err != nil {
		return err
	}
	defer t.finish()

	if err := t.dev.WriteAesKey(keyType, &key); err != nil {
		return err
	}
	fmt.Printf("programmed %v, CRC %#010x\n", keyType, efuse.AesKeyCrc(&key))
	return nil
}

type cmdCheckKey struct {
	Type  string `long:"type" choice:"aes" choice:"user0" choice:"user1" required:"true" description:"Which key eFuse to check"`
	Blank bool   `long:"blank" description:"Check that the key is still blank"`
	Crc   string `long:"crc" description:"Expected key CRC as produced by write-key"`
}

func (cmd *cmdCheckKey) Execute(args []string) error {
	keyType, err := parseKeyType(cmd.Type)
	if err != nil {
		return err
	}

	var crc uint32
	switch {
	case cmd.Blank && cmd.Crc != "":
		return errors.New("--blank and --crc cannot be combined")
	case cmd.Blank:
		crc = efuse.AesCrcZeros
	case cmd.Crc != "":
		crc, err = parseHexWord(cmd.Crc)
		if err != nil {
			return err
		}
	default:
		return errors.New("one of --blank or --crc is required")
	}

	t, err := openTarget()
	if err != nil {
		return err
	}
	defer t.finish()

	if err := t.dev.CheckAesKeyCrc(keyType, crc); err != nil {
		return err
	}
	fmt.Printf("%v CRC matches\n", keyType)
	return nil
}

type cmdWritePpk struct {
	Ppk uint32 `long:"ppk" required:"true" description:"PPK slot to program (0, 1 or 2)"`

	Positional struct {
		Hash string `positional-arg-name:"hash-hex" required:"true"`
	} `positional-args:"true"`
}

func (cmd *cmdWritePpk) Execute(args []string) error {
	words, err := parseHexWords(cmd.Positional.Hash, len(efuse.PpkHash{}))
	if err != nil {
		return err
	}
	var hash efuse.PpkHash
	copy(hash[:], words)

	t, err := openTarget()
	if err != nil {
		return err
	}
	defer t.finish()

	ppkType := efuse.PpkType(cmd.Ppk)
	if err := t.dev.WritePpkHash(ppkType, &hash); err != nil {
		return err
	}
	fmt.Printf("programmed %v\n", ppkType)
	return nil
}

type cmdWriteIv struct {
	Type string `long:"type" choice:"meta-header" choice:"black" choice:"plm" choice:"data-partition" required:"true" description:"Which IV eFuse to program"`

	Positional struct {
		Iv string `positional-arg-name:"iv-hex" required:"true"`
	} `positional-args:"true"`
}

func (cmd *cmdWriteIv) Execute(args []string) error {
	ivType, err := parseIvType(cmd.Type)
	if err != nil {
		return err
	}
	words, err := parseHexWords(cmd.Positional.Iv, len(efuse.Iv{}))
	if err != nil {
		return err
	}
	var iv efuse.Iv
	copy(iv[:], words)

	t, err := openTarget()
	if err != nil {
		return err
	}
	defer t.finish()

	if err := t.dev.WriteIv(ivType, &iv); err != nil {
		return err
	}
	fmt.Printf("programmed %v\n", ivType)
	return nil
}

type cmdWriteUds struct {
	EnvMonitorDisable bool `long:"env-monitor-disable" description:"Skip the environmental monitor checks"`

	Positional struct {
		Uds string `positional-arg-name:"uds-hex" required:"true"`
	} `positional-args:"true"`
}

func (cmd *cmdWriteUds) Execute(args []string) error {
	words, err := parseHexWords(cmd.Positional.Uds, len(efuse.Uds{}))
	if err != nil {
		return err
	}
	var uds efuse.Uds
	copy(uds[:], words)

	t, err := openTarget()
	if err != nil {
		return err
	}
	defer t.finish()

	if err := t.dev.WriteUds(cmd.EnvMonitorDisable, &uds); err != nil {
		return err
	}
	fmt.Printf("programmed UDS, CRC %#010x\n", efuse.UdsCrc(&uds))
	return nil
}

type cmdCheckUds struct {
	Blank bool   `long:"blank" description:"Check that the UDS is still blank"`
	Crc   string `long:"crc" description:"Expected UDS CRC as produced by write-uds"`
}

func (cmd *cmdCheckUds) Execute(args []string) error {
	var crc uint32
	switch {
	case cmd.Blank && cmd.Crc != "":
		return errors.New("--blank and --crc cannot be combined")
	case cmd.Blank:
		crc = efuse.UdsCrcZeros
	case cmd.Crc != "":
		var err error
		crc, err = parseHexWord(cmd.Crc)
		if err != nil {
			return err
		}
	default:
		return errors.New("one of --blank or --crc is required")
	}

	t, err := openTarget()
	if err != nil {
		return err
	}
	defer t.finish()

	if err := t.dev.CheckUdsCrc(crc); err != nil {
		return err
	}
	fmt.Println("UDS CRC matches")
	return nil
}

type cmdRevoke struct {
	OffChip           bool `long:"off-chip" description:"Revoke off chip content IDs instead of secondary public keys"`
	EnvMonitorDisable bool `long:"env-monitor-disable" description:"Skip the environmental monitor checks"`

	Positional struct {
		IDs idRange `positional-arg-name:"ids" required:"true"`
	} `positional-args:"true"`
}

func (cmd *cmdRevoke) Execute(args []string) error {
	t, err := openTarget()
	if err != nil {
		return err
	}
	defer t.finish()

	write := t.dev.WriteRevocationID
	if cmd.OffChip {
		write = t.dev.WriteOffChipRevokeID
	}
	for _, id := range cmd.Positional.IDs {
		if err := write(cmd.EnvMonitorDisable, id); err != nil {
			return err
		}
		fmt.Printf("revoked ID %d\n", id)
	}
	return nil
}

type cmdApply struct {
	EnvMonitorDisable bool `long:"env-monitor-disable" description:"Skip the environmental monitor checks"`

	Positional struct {
		Plan flags.Filename `positional-arg-name:"plan-yaml" required:"true"`
	} `positional-args:"true"`
}

func (cmd *cmdApply) Execute(args []string) error {
	p, err := readPlan(string(cmd.Positional.Plan))
	if err != nil {
		return err
	}

	t, err := openTarget()
	if err != nil {
		return err
	}
	defer t.finish()

	return p.apply(t.dev, cmd.EnvMonitorDisable)
}

func addCommand(parser *flags.Parser, name, short, long string, data interface{}) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		panic(err)
	}
}

func run() error {
	parser := flags.NewParser(&opts, flags.Default)
	addCommand(parser, "show", "Show the fuse state",
		"Show the programmed fuse fields as mirrored by the cache bank.", &cmdShow{})
	addCommand(parser, "dump", "Dump raw cache words",
		"Dump raw words of the fuse cache bank for diagnostics.", &cmdDump{})
	addCommand(parser, "reload", "Reload the fuse cache",
		"Reload the mirrored fuse image from the array, making fuses programmed in this power cycle visible.", &cmdReload{})
	addCommand(parser, "write-key", "Program a key eFuse",
		"Program the AES key or one of the user key eFuses from a big endian hex string.", &cmdWriteKey{})
	addCommand(parser, "check-key", "Check a key eFuse CRC",
		"Run the controller CRC engine over a key eFuse and compare against the given CRC.", &cmdCheckKey{})
	addCommand(parser, "write-ppk", "Program a PPK hash eFuse",
		"Program one of the primary public key hash eFuses from a big endian hex string.", &cmdWritePpk{})
	addCommand(parser, "write-iv", "Program an IV eFuse",
		"Program one of the initialization vector eFuses from a big endian hex string.", &cmdWriteIv{})
	addCommand(parser, "write-uds", "Program the UDS eFuse",
		"Program the unique device secret from a big endian hex string.", &cmdWriteUds{})
	addCommand(parser, "check-uds", "Check the UDS eFuse CRC",
		"Run the controller CRC engine over the UDS eFuse and compare against the given CRC.", &cmdCheckUds{})
	addCommand(parser, "revoke", "Revoke key or content IDs",
		"Burn the revocation fuses for the given IDs, accepted as a comma separated list of values and ranges such as 1,4-7.", &cmdRevoke{})
	addCommand(parser, "apply", "Apply a provisioning plan",
		"Program the fuse fields listed in a YAML provisioning plan, in a safe order. Combine with --dry-run to validate a plan against a simulated blank array.", &cmdApply{})

	_, err := parser.Parse()
	return err
}

func main() {
	if err := run(); err != nil {
		switch e := err.(type) {
		case *flags.Error:
			// flags already prints this
			if e.Type != flags.ErrHelp {
				os.Exit(1)
			}
		default:
			fmt.Fprintln(os.Stderr, "cannot program fuses:", err)
			os.Exit(1)
		}
	}
}
