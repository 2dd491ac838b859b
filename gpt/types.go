package gpt

// Partition type names.
const (
	TypeUnused  = "unused"
	TypeUnknown = "unknown"
)

// Partition type GUIDs seen on the device.
var (
	UnusedTypeGUID         = GUID{}
	EFISystemTypeGUID      = MustParseGUID("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")
	BasicDataTypeGUID      = MustParseGUID("EBD0A0A2-B9E5-4433-87C0-68B6B72699C7")
	LinuxFilesystemGUID    = MustParseGUID("0FC63DAF-8483-4772-8E79-3D69D8477DE4")
	LinuxSwapTypeGUID      = MustParseGUID("0657FD6D-A4AB-43C4-84E5-0933C84B4F4F")
	AndroidBootTypeGUID    = MustParseGUID("20117F86-E985-4357-B9EE-374BC1D8487D")
	AndroidSystemTypeGUID  = MustParseGUID("97D7B011-54DA-4835-B3C4-917AD6E73D74")
	AndroidUserdataGUID    = MustParseGUID("1B81E7E6-F50D-419B-A739-2AEEF8DA3335")
	AndroidMiscTypeGUID    = MustParseGUID("82ACC91F-357C-4A68-9C8F-689E1B1A23A1")
	AndroidPersistTypeGUID = MustParseGUID("6C95E238-E343-4BA8-B489-8681ED22AD0B")
	QualcommXBLTypeGUID    = MustParseGUID("DEA0BA2C-CBDD-4805-B4F9-F428251C3E98")
	QualcommABLTypeGUID    = MustParseGUID("BD6928A1-4CE0-A038-4F3A-1495E3EDDFFB")
)

var typeNames = map[GUID]string{
	UnusedTypeGUID:         TypeUnused,
	EFISystemTypeGUID:      "efi_system",
	BasicDataTypeGUID:      "basic_data",
	LinuxFilesystemGUID:    "linux_filesystem",
	LinuxSwapTypeGUID:      "linux_swap",
	AndroidBootTypeGUID:    "android_boot",
	AndroidSystemTypeGUID:  "android_system",
	AndroidUserdataGUID:    "android_userdata",
	AndroidMiscTypeGUID:    "android_misc",
	AndroidPersistTypeGUID: "android_persist",
	QualcommXBLTypeGUID:    "qcom_xbl",
	QualcommABLTypeGUID:    "qcom_abl",
}

// TypeName returns the name of a partition type GUID, TypeUnknown for types
// not in the table.
func TypeName(g GUID) string {
	if name, ok := typeNames[g]; ok {
		return name
	}
	return TypeUnknown
}
