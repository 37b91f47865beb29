package pmu

// DTM register offsets within an XP node (por_dtm_*).
const (
	dtmControl   = 0x2100 // dtm_enable, trace_tag_enable, trace_no_atb
	dtmFifoReady = 0x2118 // por_dtm_fifo_entry_ready
	dtmFifoEntry = 0x2120 // por_dtm_fifo_entry0_0, 3 words per watchpoint
	dtmWpConfig  = 0x21A0 // por_dtm_wp0-3_config, stride 24
	dtmWpVal     = 0x21A8 // por_dtm_wp0-3_val
	dtmWpMask    = 0x21B0 // por_dtm_wp0-3_mask
	dtmPmuConfig = 0x2210 // por_dtm_pmu_config
	dtmPmevcntsr = 0x2240 // por_dtm_pmevcntsr

	wpStride        = 24
	fifoEntryStride = 24
)

// DTC register offsets within a DTC node (por_dt_*).
const (
	dtDtcCtl    = 0x0A00 // dt_en
	dtTraceCtl  = 0x0A30 // cc_enable
	dtPmcr      = 0x2100 // pmu_en, cntr_rst
	dtPmevcntsr = 0x2050 // por_dt_pmevcntsrAB, stride 16 per counter pair
	dtPmssr     = 0x2128 // ss_status
	dtPmsrr     = 0x2130 // ss_req
)
