package mux

// Register map of the PLC gateway. Offsets are fixed by wiring and firmware.
const (
	ChannelCount = 12

	// Digital inputs: bit 0 ready, bit 1 powered.
	DINBase   uint16 = 0
	DINReady  uint16 = 0x1
	DINOn     uint16 = 0x2
	CoilPower uint16 = 0

	// Analog inputs
	AINWriteBase  uint16 = 586
	AINReadBase   uint16 = 202
	AINModules           = 3
	AINPerModule         = 8
	AINTotal             = AINModules * AINPerModule
	AINModuleSize        = 2
	AINTotalSize         = AINModuleSize * AINModules

	AINMeasPM10V     = 0x1
	AINFormatIBIL    = 0x000
	AINFilterAvg16   = 0x0000
	AINFilterNone    = 0x1000
	AINFilterAvg4    = 0x2000
	AINFilterAvg32   = 0x3000
	AINConfigControl = 0x6000 // configures all channels of a module
	AINConfigOptions = AINMeasPM10V | AINFormatIBIL | AINFilterAvg32

	// AIN status words carry this bit when the module reports an error.
	StatusFaultBit uint16 = 0x8000
	SelectorStep   uint16 = 0x100

	// Analog outputs
	AOUTWriteBase       uint16 = 576
	AOUTReadBase        uint16 = 192
	AOUTModules                = 2
	AOUTPerModule              = 8
	AOUTGroupsPerModule        = 2
	AOUTPerGroup               = 4
	AOUTModuleSize             = 1 + AOUTPerGroup
	AOUTTotalSize              = AOUTModuleSize * AOUTModules

	AOUTRangePM10V    = 0x1
	AOUTFormatIBIL    = 0x00
	AOUTConfigControl = 0x6000 | AOUTRangePM10V | AOUTFormatIBIL
	AOUTControlRecall = 0x0200
	AOUTGroup0Control = 0x0100
	AOUTGroup1Control = 0x0900

	SetpointMax         = 32512 // 0x7f00
	SetpointMin         = -32512
	DefaultChannelLimit = 25
)

// 2 readings (voltage, current) per channel must exactly fill the input modules.
var _ [0]struct{} = [2*ChannelCount - AINTotal]struct{}{}

// Channels must fill whole output groups.
var _ [0]struct{} = [ChannelCount % AOUTPerGroup]struct{}{}
