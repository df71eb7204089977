// Package bridge is the extension entry point.
//
// The native init symbol of the library hands its arguments to Initialize
// together with a configuration callback:
//
//	func libraryInit(getProc abi.GetProcAddress, lib abi.LibraryPtr, init *abi.Initialization) bool {
//		_, err := bridge.Initialize(getProc, lib, init, func(c *bridge.Configuration) error {
//			c.SetMinimumLevel(bridge.LevelScene)
//			c.RegisterInitializer(func(rt *bridge.Runtime, l bridge.Level) error {
//				if l != bridge.LevelScene {
//					return nil
//				}
//				return widget.Register(rt.Classes())
//			})
//			return nil
//		})
//		return err == nil
//	}
//
// Initialize builds a Runtime: the interned-name table, object bridge,
// codec registry, class registry and callable bridge of one library. The
// host then walks the initialization levels up from the configured minimum,
// calling the initializers once per level, and later walks them down,
// calling the terminators in reverse. When the minimum level is
// deinitialized the runtime tears down: tracked objects are disposed,
// classes are unregistered in reverse order, remaining callables are
// dropped and the name table is released.
package bridge
