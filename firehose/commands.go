package firehose

import (
	"bytes"
	"strconv"
	"strings"
)

// attrEscaper escapes attribute values the way encoding/xml does.
var attrEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`<`, "&lt;",
	`>`, "&gt;",
	`"`, "&#34;",
	`'`, "&#39;",
	"\t", "&#x9;",
	"\n", "&#xA;",
	"\r", "&#xD;",
)

type attr struct {
	name  string
	value string
}

func boolAttr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func uintAttr(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// buildCommand renders <data><tag a="v" ... /></data> with the XML prolog.
func buildCommand(tag string, attrs ...attr) []byte {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	buf.WriteString("<data><")
	buf.WriteString(tag)
	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.name)
		buf.WriteString(`="`)
		buf.WriteString(attrEscaper.Replace(a.value))
		buf.WriteByte('"')
	}
	buf.WriteString(" /></data>")
	return buf.Bytes()
}

// BuildConfigure constructs the <configure> command for s.
func BuildConfigure(s Settings) []byte {
	return buildCommand(TagConfigure,
		attr{"MemoryName", s.MemoryName},
		attr{"Verbose", "0"},
		attr{"AlwaysValidate", "0"},
		attr{"MaxDigestTableSizeInBytes", strconv.Itoa(DefaultMaxDigestTableSize)},
		attr{"MaxPayloadSizeToTargetInBytes", strconv.Itoa(s.MaxPayloadSizeToTarget)},
		attr{"ZLPAwareHost", boolAttr(s.ZLPAwareHost)},
		attr{"SkipStorageInit", boolAttr(s.SkipStorageInit)},
		attr{"SkipWrite", boolAttr(s.SkipWrite)},
	)
}

// sectorCommand renders the common sector-range attributes of read and program.
func sectorCommand(tag string, sectorSize, lun int, startSector, numSectors uint64) []byte {
	return buildCommand(tag,
		attr{"SECTOR_SIZE_IN_BYTES", strconv.Itoa(sectorSize)},
		attr{"num_partition_sectors", uintAttr(numSectors)},
		attr{"physical_partition_number", strconv.Itoa(lun)},
		attr{"start_sector", uintAttr(startSector)},
	)
}

// BuildRead constructs a <read> command for numSectors sectors of lun.
func BuildRead(sectorSize, lun int, startSector, numSectors uint64) []byte {
	return sectorCommand(TagRead, sectorSize, lun, startSector, numSectors)
}

// BuildProgram constructs a <program> command for numSectors sectors of lun.
func BuildProgram(sectorSize, lun int, startSector, numSectors uint64) []byte {
	return sectorCommand(TagProgram, sectorSize, lun, startSector, numSectors)
}

// BuildSetBootableStorageDrive constructs the command selecting the boot LUN.
func BuildSetBootableStorageDrive(lun int) []byte {
	return buildCommand(TagSetBootableStorageDrive, attr{"value", strconv.Itoa(lun)})
}

// BuildPower constructs a <power> command; action is "reset" or "off".
func BuildPower(action string) []byte {
	return buildCommand(TagPower, attr{"value", action})
}

// BuildNop constructs a <nop> command.
func BuildNop() []byte {
	return buildCommand(TagNop)
}

// BuildFixGPT constructs the command asking the programmer to rewrite the
// backup GPT of lun from its primary.
func BuildFixGPT(lun int, growLastPartition bool) []byte {
	return buildCommand(TagFixGPT,
		attr{"lun", strconv.Itoa(lun)},
		attr{"grow_last_partition", boolAttr(growLastPartition)},
	)
}
