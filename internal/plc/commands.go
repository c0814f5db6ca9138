package plc

// Command tokens understood by transmitter firmware. Spelling and casing
// are firmware-exact, "StartContral" included.
const (
	CmdListCCO        = "CCO_UID"
	CmdGetType        = "GETTYPE"
	CmdSetType        = "SETTYPE"
	CmdReset10V       = "RESET10V"
	CmdDimAll3        = "DIMALL3"
	CmdGetDims        = "GETDIMS"
	CmdSetDims        = "SETDIMS"
	CmdSetDeviceGroup = "SET_DEVICE_GROUP"
	CmdGroups         = "GROUPS"
	CmdGetSTAGroups   = "GETSTAGROUPS"
	CmdGetTxPower     = "GetTxPower"
	CmdSetTxPower     = "SetTxPower"
	CmdGetAccessTime  = "GetAccessTime"
	CmdSetAccessTime  = "SetAccessTime"
	CmdGetBand        = "GetCCOBand"
	CmdSetBand        = "SetCCOBand"
	CmdGetChannel     = "GetCCOChannel"
	CmdSetChannel     = "SetCCOChannel"
	CmdGetStartup     = "GetStartContral"
	CmdSetStartup     = "SetStartContral"
	CmdGetModbusAddr  = "GetModbusAddr"
	CmdSetModbusAddr  = "SetModbusAddr"
	CmdGetDeviceIP    = "GetDeviceIP"
	CmdSetDeviceIP    = "SetDeviceIP"
	CmdWhitelistClear = "WHCLR"
	CmdWhitelistGet   = "WHSGET"
	CmdWhitelistPage  = "WHMULT"
	CmdWhitelistStart = "WHSTART"
	CmdWhitelistList  = "WHMLIST"
	CmdWhitelistEnd   = "WHEND"
	CmdWhitelistStop  = "WHITESTOP"
	CmdReboot         = "REBOOTCCO"
	CmdSettingStart   = "SETTINGSTART"
	CmdStatus         = "STATUS"
	CmdSTAReport      = "STA"
)

// DIMALL3 mode byte, the last byte of the binary payload. Selects the
// addressing variant and whether dimming is applied or cleared.
const (
	ModeBroadcast     byte = 0x00
	ModeSingleEnable  byte = 0x04
	ModeSingleDisable byte = 0x05
	ModeGroupEnable   byte = 0x06
	ModeGroupDisable  byte = 0x07
)
