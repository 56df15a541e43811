package ethernet

import "strconv"

// String returns a human readable mnemonic for the EtherType, written
// out by hand in the shape a `stringer -linecomment` invocation over
// the constants in definitions.go would produce.
func (t Type) String() string {
	switch t {
	case TypeIPv4:
		return "IPv4"
	case TypeARP:
		return "ARP"
	case TypeWakeOnLAN:
		return "wake on LAN"
	case TypeTRILL:
		return "TRILL"
	case TypeDECnetPhase4:
		return "DECnetPhase4"
	case TypeRARP:
		return "RARP"
	case TypeAppleTalk:
		return "AppleTalk"
	case TypeAARP:
		return "AARP"
	case TypeIPX1:
		return "IPx1"
	case TypeIPX2:
		return "IPx2"
	case TypeQNXQnet:
		return "QNXQnet"
	case TypeIPv6:
		return "IPv6"
	case TypeEthernetFlowControl:
		return "EthernetFlowCtl"
	case TypeIEEE802_3:
		return "IEEE802.3"
	case TypeCobraNet:
		return "CobraNet"
	case TypeMPLSUnicast:
		return "MPLS Unicast"
	case TypeMPLSMulticast:
		return "MPLS Multicast"
	case TypePPPoEDiscovery:
		return "PPPoE discovery"
	case TypePPPoESession:
		return "PPPoE session"
	case TypeJumboFrames:
		return "jumbo frames"
	case TypeHomePlug1_0MME:
		return "home plug 1 0mme"
	case TypeIEEE802_1X:
		return "IEEE 802.1x"
	case TypePROFINET:
		return "profinet"
	case TypeHyperSCSI:
		return "hyper SCSI"
	case TypeAoE:
		return "AoE"
	case TypeEtherCAT:
		return "EtherCAT"
	case TypeEthernetPowerlink:
		return "Ethernet powerlink"
	case TypeLLDP:
		return "LLDP"
	case TypeSERCOS3:
		return "SERCOS3"
	case TypeHomePlugAVMME:
		return "home plug AVMME"
	case TypeMRP:
		return "MRP"
	case TypeIEEE802_1AE:
		return "IEEE 802.1ae"
	case TypeIEEE1588:
		return "IEEE 1588"
	case TypeIEEE802_1ag:
		return "IEEE 802.1ag"
	case TypeFCoE:
		return "FCoE"
	case TypeFCoEInit:
		return "FCoE init"
	case TypeRoCE:
		return "RoCE"
	case TypeCTP:
		return "CTP"
	case TypeVeritasLLT:
		return "Veritas LLT"
	case TypeVLAN:
		return "VLAN"
	case TypeServiceVLAN:
		return "service VLAN"
	default:
		return "Type(" + strconv.FormatInt(int64(t), 10) + ")"
	}
}
