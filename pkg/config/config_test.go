package config

import (
	"strings"
	"testing"

	"github.com/swrouter/swrouter/pkg/common"
)

func TestParseInterfaces(t *testing.T) {
	input := `# interfaces
eth0 00:11:22:33:44:55 192.168.1.1

eth1 00:11:22:33:44:66 172.64.3.1
`
	interfaces, err := ParseInterfaces(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseInterfaces() error = %v", err)
	}
	if len(interfaces) != 2 {
		t.Fatalf("got %d interfaces, want 2", len(interfaces))
	}
	if interfaces[0].Name != "eth0" {
		t.Errorf("interfaces[0].Name = %q, want eth0", interfaces[0].Name)
	}
	wantIP, _ := common.ParseIPv4("192.168.1.1")
	if interfaces[0].IPv4 != wantIP {
		t.Errorf("interfaces[0].IPv4 = %v, want %v", interfaces[0].IPv4, wantIP)
	}
}

func TestParseInterfacesRejectsBadField(t *testing.T) {
	_, err := ParseInterfaces(strings.NewReader("eth0 not-a-mac 192.168.1.1\n"))
	if err == nil {
		t.Fatal("ParseInterfaces() with an invalid MAC should error")
	}
}

func TestParseInterfacesRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseInterfaces(strings.NewReader("eth0 00:11:22:33:44:55\n"))
	if err == nil {
		t.Fatal("ParseInterfaces() with too few fields should error")
	}
}

func TestParseRoutes(t *testing.T) {
	input := `0.0.0.0 172.64.3.1 0.0.0.0 eth1
192.168.1.0 0.0.0.0 255.255.255.0 eth0
`
	rt, err := ParseRoutes(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseRoutes() error = %v", err)
	}

	dst, _ := common.ParseIPv4("192.168.1.42")
	route, nextHop, err := rt.Lookup(dst)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if route.Iface != "eth0" {
		t.Errorf("route.Iface = %q, want eth0", route.Iface)
	}
	if nextHop != dst {
		t.Errorf("nextHop = %v, want %v (direct route)", nextHop, dst)
	}

	dst2, _ := common.ParseIPv4("8.8.8.8")
	route2, nextHop2, err := rt.Lookup(dst2)
	if err != nil {
		t.Fatalf("Lookup() default route error = %v", err)
	}
	if route2.Iface != "eth1" {
		t.Errorf("default route.Iface = %q, want eth1", route2.Iface)
	}
	wantGW, _ := common.ParseIPv4("172.64.3.1")
	if nextHop2 != wantGW {
		t.Errorf("default nextHop = %v, want %v", nextHop2, wantGW)
	}
}

func TestParseRoutesRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseRoutes(strings.NewReader("0.0.0.0 172.64.3.1 0.0.0.0\n"))
	if err == nil {
		t.Fatal("ParseRoutes() with too few fields should error")
	}
}
